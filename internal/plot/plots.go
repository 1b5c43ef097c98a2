// Package plot renders the forecast and component diagnostics as PNG images.
package plot

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/lox/aqicast/internal/models"
)

const (
	ForecastFilename   = "forecast_plot.png"
	ComponentsFilename = "components_plot.png"

	forecastWidth  = 1200
	forecastHeight = 600
	panelHeight    = 200
)

// Profiles supplies seasonal components over a single period.
type Profiles interface {
	SeasonalProfile(name string, from time.Time, days int) []float64
}

type Labels struct {
	Title  string
	XLabel string
	YLabel string
}

// Files are the rendered image filenames, relative to the output directory.
type Files struct {
	Forecast   string
	Components string
}

// WriteAll renders both plots into dir, creating it if needed.
func WriteAll(dir string, observed []models.SeriesPoint, forecast []models.ForecastPoint, profiles Profiles, labels Labels) (Files, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Files{}, fmt.Errorf("create plot dir: %w", err)
	}

	var buf bytes.Buffer
	if err := RenderForecast(&buf, observed, forecast, labels); err != nil {
		return Files{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, ForecastFilename), buf.Bytes(), 0644); err != nil {
		return Files{}, fmt.Errorf("write forecast plot: %w", err)
	}

	buf.Reset()
	if err := RenderComponents(&buf, forecast, profiles); err != nil {
		return Files{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, ComponentsFilename), buf.Bytes(), 0644); err != nil {
		return Files{}, fmt.Errorf("write components plot: %w", err)
	}

	return Files{Forecast: ForecastFilename, Components: ComponentsFilename}, nil
}

// RenderForecast draws observed points, the forecast line and its uncertainty
// band.
func RenderForecast(w io.Writer, observed []models.SeriesPoint, forecast []models.ForecastPoint, labels Labels) error {
	if err := loadFonts(); err != nil {
		return fmt.Errorf("load fonts: %w", err)
	}
	if len(forecast) == 0 {
		return fmt.Errorf("render forecast: no forecast points")
	}

	start := forecast[0].Date
	end := forecast[len(forecast)-1].Date
	for _, p := range observed {
		if p.Date.Before(start) {
			start = p.Date
		}
	}

	ymin, ymax := math.Inf(1), math.Inf(-1)
	for _, f := range forecast {
		ymin = math.Min(ymin, f.YhatLower)
		ymax = math.Max(ymax, f.YhatUpper)
	}
	for _, p := range observed {
		ymin = math.Min(ymin, p.Value)
		ymax = math.Max(ymax, p.Value)
	}
	yticks := niceTicks(ymin, ymax, 6)

	c := newCanvas(forecastWidth, forecastHeight)
	p := panel{
		rect: image.Rect(80, 60, forecastWidth-30, forecastHeight-70),
		xmin: 0, xmax: daysSince(start, end),
		ymin: ymin, ymax: ymax,
	}
	c.frame(p, dateTicks(start, end), yticks)

	upper := make([]point, 0, 2*len(forecast))
	lower := make([]point, 0, len(forecast))
	line := make([]point, 0, len(forecast))
	for _, f := range forecast {
		x := p.px(daysSince(start, f.Date))
		upper = append(upper, point{x, p.py(f.YhatUpper)})
		lower = append(lower, point{x, p.py(f.YhatLower)})
		line = append(line, point{x, p.py(f.Yhat)})
	}
	for i := len(lower) - 1; i >= 0; i-- {
		upper = append(upper, lower[i])
	}
	c.polygon(upper, colorBand)
	c.polyline(line, 2, colorForecast)

	for _, o := range observed {
		c.dot(p.px(daysSince(start, o.Date)), p.py(o.Value), 3, colorActual)
	}

	c.text(labels.Title, forecastWidth/2, 36, fontTitle, colorText, anchorCenter)
	c.text(labels.XLabel, (p.rect.Min.X+p.rect.Max.X)/2, forecastHeight-20, fontLabel, colorText, anchorCenter)
	c.text(labels.YLabel, p.rect.Min.X, p.rect.Min.Y-8, fontLabel, colorText, anchorLeft)

	return encode(w, c)
}

type componentPanel struct {
	title  string
	xs     []float64
	ys     []float64
	xticks []tick
}

// RenderComponents draws one panel per model component: trend, holidays,
// weekly and yearly seasonality.
func RenderComponents(w io.Writer, forecast []models.ForecastPoint, profiles Profiles) error {
	if err := loadFonts(); err != nil {
		return fmt.Errorf("load fonts: %w", err)
	}
	if len(forecast) == 0 {
		return fmt.Errorf("render components: no forecast points")
	}

	start, end := forecast[0].Date, forecast[len(forecast)-1].Date
	xs := make([]float64, len(forecast))
	trend := make([]float64, len(forecast))
	hol := make([]float64, len(forecast))
	hasHolidays := false
	for i, f := range forecast {
		xs[i] = daysSince(start, f.Date)
		trend[i] = f.Trend
		hol[i] = f.Holidays
		if f.Holidays != 0 {
			hasHolidays = true
		}
	}

	panels := []componentPanel{{title: "trend", xs: xs, ys: trend, xticks: dateTicks(start, end)}}
	if hasHolidays {
		panels = append(panels, componentPanel{title: "holidays", xs: xs, ys: hol, xticks: dateTicks(start, end)})
	}

	// 2017-01-01 is a Sunday, so the weekly profile runs Sunday to Saturday.
	ref := time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)
	if weekly := profiles.SeasonalProfile("weekly", ref, 7); weekly != nil {
		var ticks []tick
		for i := range weekly {
			ticks = append(ticks, tick{value: float64(i), label: ref.AddDate(0, 0, i).Weekday().String()})
		}
		panels = append(panels, componentPanel{title: "weekly", xs: indexes(len(weekly)), ys: weekly, xticks: ticks})
	}
	if yearly := profiles.SeasonalProfile("yearly", ref, 365); yearly != nil {
		var ticks []tick
		for m := 0; m < 12; m++ {
			d := ref.AddDate(0, m, 0)
			ticks = append(ticks, tick{value: daysSince(ref, d), label: d.Format("January")})
		}
		panels = append(panels, componentPanel{title: "yearly", xs: indexes(len(yearly)), ys: yearly, xticks: ticks})
	}

	height := panelHeight * len(panels)
	c := newCanvas(forecastWidth, height)
	for i, cp := range panels {
		top := i * panelHeight
		ymin, ymax := minMax(cp.ys)
		if ymin == ymax {
			ymin, ymax = ymin-1, ymax+1
		}
		yticks := niceTicks(ymin, ymax, 4)
		p := panel{
			rect: image.Rect(80, top+30, forecastWidth-30, top+panelHeight-35),
			xmin: cp.xs[0], xmax: cp.xs[len(cp.xs)-1],
			ymin: ymin, ymax: ymax,
		}
		c.frame(p, cp.xticks, yticks)

		pts := make([]point, len(cp.xs))
		for j := range cp.xs {
			pts[j] = point{p.px(cp.xs[j]), p.py(cp.ys[j])}
		}
		c.polyline(pts, 2, colorForecast)
		c.text(cp.title, p.rect.Min.X, top+22, fontLabel, colorText, anchorLeft)
	}

	return encode(w, c)
}

func encode(w io.Writer, c *canvas) error {
	if err := png.Encode(w, c.img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

func daysSince(start, t time.Time) float64 {
	return t.Sub(start).Hours() / 24
}

func indexes(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func minMax(vals []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range vals {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}
