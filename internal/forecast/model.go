// Package forecast fits an additive time-series model to a daily series:
//
//	y(t) = trend(t) + yearly(t) + weekly(t) + daily(t) + holidays(t) + noise
//
// The trend is piecewise linear with automatically placed changepoints,
// seasonalities are truncated Fourier series and holidays are indicator
// regressors, one per day offset within a holiday window. Coefficients are the
// MAP estimate under Gaussian priors, found by penalised least squares.
package forecast

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/lox/aqicast/internal/models"
)

var (
	ErrDegenerateSeries = errors.New("series needs at least two distinct dates")
	ErrNonConvergence   = errors.New("model fit did not converge")
	ErrNotFitted        = errors.New("model not fitted")
	ErrNegativeHorizon  = errors.New("terminal date is before last observed date")
)

const (
	trendPriorScale = 5.0
	minNoiseScale   = 1e-3
	maxFitIters     = 50
	fitTolerance    = 1e-4
)

var epoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

type Options struct {
	YearlySeasonality bool
	WeeklySeasonality bool
	DailySeasonality  bool // no effect on daily-resolution data

	Holidays []models.HolidayWindow

	ChangepointCount      int
	ChangepointRange      float64 // fraction of history eligible for changepoints
	ChangepointPriorScale float64
	SeasonalityPriorScale float64
	HolidayPriorScale     float64
	IntervalWidth         float64
}

func DefaultOptions() Options {
	return Options{
		YearlySeasonality:     true,
		WeeklySeasonality:     true,
		DailySeasonality:      false,
		ChangepointCount:      25,
		ChangepointRange:      0.8,
		ChangepointPriorScale: 0.05,
		SeasonalityPriorScale: 10,
		HolidayPriorScale:     10,
		IntervalWidth:         0.8,
	}
}

type seasonality struct {
	name   string
	period float64 // days
	order  int
}

// block is a contiguous run of design-matrix columns.
type block struct {
	start, end int
}

type Model struct {
	opts Options

	seasonalities []seasonality
	seasonBlocks  map[string]block
	holidayCols   map[string]int // label%+d -> column
	holidayDays   map[time.Time][]int
	holidayBlock  block
	nCols         int

	start        time.Time
	end          time.Time
	tScale       float64 // days from start to end
	yScale       float64
	changepoints []float64 // scaled time

	history []models.SeriesPoint
	beta    []float64
	sigma   float64 // residual sd, scaled units
	rmse    float64
	fitted  bool
}

func New(opts Options) *Model {
	m := &Model{opts: opts, seasonBlocks: make(map[string]block)}
	if opts.YearlySeasonality {
		m.seasonalities = append(m.seasonalities, seasonality{name: "yearly", period: 365.25, order: 10})
	}
	if opts.WeeklySeasonality {
		m.seasonalities = append(m.seasonalities, seasonality{name: "weekly", period: 7, order: 3})
	}
	if opts.DailySeasonality {
		m.seasonalities = append(m.seasonalities, seasonality{name: "daily", period: 1, order: 4})
	}
	return m
}

// Fit estimates the model on series, which must be sorted by date.
func (m *Model) Fit(series []models.SeriesPoint) error {
	if len(series) < 2 || !series[0].Date.Before(series[len(series)-1].Date) {
		return ErrDegenerateSeries
	}

	m.history = series
	m.start = series[0].Date
	m.end = series[len(series)-1].Date
	m.tScale = daysBetween(m.start, m.end)

	m.yScale = 0
	for _, p := range series {
		m.yScale = math.Max(m.yScale, math.Abs(p.Value))
	}
	if m.yScale == 0 {
		m.yScale = 1
	}

	m.placeChangepoints()
	m.layoutColumns()

	n, p := len(series), m.nCols
	x := mat.NewDense(n, p, nil)
	y := mat.NewVecDense(n, nil)
	row := make([]float64, p)
	for i, pt := range series {
		m.designRow(pt.Date, row)
		x.SetRow(i, row)
		y.SetVec(i, pt.Value/m.yScale)
	}

	var xtx mat.SymDense
	xtx.SymOuterK(1, x.T())
	xty := mat.NewVecDense(p, nil)
	xty.MulVec(x.T(), y)

	priors := m.priorScales()
	sigma := 0.5
	beta := mat.NewVecDense(p, nil)
	fitted := mat.NewVecDense(n, nil)
	converged := false

	for iter := 0; iter < maxFitIters; iter++ {
		a := mat.NewSymDense(p, nil)
		a.CopySym(&xtx)
		s2 := sigma * sigma
		for j := 0; j < p; j++ {
			a.SetSym(j, j, a.At(j, j)+s2/(priors[j]*priors[j]))
		}

		var chol mat.Cholesky
		if ok := chol.Factorize(a); !ok {
			return fmt.Errorf("%w: normal equations not positive definite", ErrNonConvergence)
		}
		if err := chol.SolveVecTo(beta, xty); err != nil {
			return fmt.Errorf("%w: %v", ErrNonConvergence, err)
		}

		fitted.MulVec(x, beta)
		var sse float64
		for i := 0; i < n; i++ {
			r := y.AtVec(i) - fitted.AtVec(i)
			sse += r * r
		}
		next := math.Max(math.Sqrt(sse/float64(n)), minNoiseScale)
		if math.IsNaN(next) || math.IsInf(next, 0) {
			return fmt.Errorf("%w: residual variance is not finite", ErrNonConvergence)
		}

		done := math.Abs(next-sigma) <= fitTolerance*sigma
		sigma = next
		if done {
			converged = true
			break
		}
	}
	if !converged {
		return fmt.Errorf("%w: noise scale unsettled after %d iterations", ErrNonConvergence, maxFitIters)
	}

	m.beta = make([]float64, p)
	for j := 0; j < p; j++ {
		v := beta.AtVec(j)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: coefficient %d is not finite", ErrNonConvergence, j)
		}
		m.beta[j] = v
	}
	m.sigma = sigma

	var sse float64
	for i := 0; i < n; i++ {
		r := (y.AtVec(i) - fitted.AtVec(i)) * m.yScale
		sse += r * r
	}
	m.rmse = math.Sqrt(sse / float64(n))
	m.fitted = true
	return nil
}

// MakeFuture returns every day from the first observed date through periods
// days past the last observed date.
func (m *Model) MakeFuture(periods int) ([]time.Time, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}
	if periods < 0 {
		return nil, ErrNegativeHorizon
	}
	last := m.end.AddDate(0, 0, periods)
	var dates []time.Time
	for d := m.start; !d.After(last); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates, nil
}

// Predict evaluates the model and its components at each date. Predictions are
// not clamped to non-negative values.
func (m *Model) Predict(dates []time.Time) ([]models.ForecastPoint, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}

	z := distuv.UnitNormal.Quantile(0.5 + m.opts.IntervalWidth/2)
	cpRate, cpMagnitude := m.changepointStats()

	row := make([]float64, m.nCols)
	out := make([]models.ForecastPoint, len(dates))
	for i, d := range dates {
		m.designRow(d, row)

		fp := models.ForecastPoint{Date: d}
		fp.Trend = m.dot(row, block{0, 2 + len(m.changepoints)})
		fp.Yearly = m.seasonal(row, "yearly")
		fp.Weekly = m.seasonal(row, "weekly")
		fp.Daily = m.seasonal(row, "daily")
		fp.Holidays = m.dot(row, m.holidayBlock)
		fp.Yhat = fp.Trend + fp.Yearly + fp.Weekly + fp.Daily + fp.Holidays

		variance := m.sigma * m.sigma
		if h := m.scaledTime(d) - 1; h > 0 {
			// Future changepoints arrive at the historical rate with Laplace
			// magnitudes; each shifts the trend by delta*(h-s).
			variance += cpRate * 2 * cpMagnitude * cpMagnitude * h * h * h / 3
		}
		width := z * math.Sqrt(variance) * m.yScale
		fp.YhatLower = fp.Yhat - width
		fp.YhatUpper = fp.Yhat + width

		out[i] = fp
	}
	return out, nil
}

// Horizon is the number of days from last to terminal.
func Horizon(last, terminal time.Time) (int, error) {
	days := int(math.Round(daysBetween(dayOf(last), dayOf(terminal))))
	if days < 0 {
		return 0, fmt.Errorf("%w: %s > %s", ErrNegativeHorizon, last.Format("2006-01-02"), terminal.Format("2006-01-02"))
	}
	return days, nil
}

// RMSE is the in-sample root mean squared error in original units.
func (m *Model) RMSE() float64 { return m.rmse }

func (m *Model) Fitted() bool { return m.fitted }

// Start and End are the first and last observed dates.
func (m *Model) Start() time.Time { return m.start }
func (m *Model) End() time.Time   { return m.end }

// Changepoints returns the changepoint dates.
func (m *Model) Changepoints() []time.Time {
	out := make([]time.Time, len(m.changepoints))
	for i, s := range m.changepoints {
		out[i] = m.start.Add(time.Duration(s * m.tScale * 24 * float64(time.Hour)))
	}
	return out
}

// SeasonalProfile evaluates the named seasonal component for days consecutive
// days starting at from. It returns nil if the seasonality is not enabled.
func (m *Model) SeasonalProfile(name string, from time.Time, days int) []float64 {
	if !m.fitted {
		return nil
	}
	if _, ok := m.seasonBlocks[name]; !ok {
		return nil
	}
	row := make([]float64, m.nCols)
	out := make([]float64, days)
	for i := range out {
		m.designRow(from.AddDate(0, 0, i), row)
		out[i] = m.seasonal(row, name)
	}
	return out
}

func (m *Model) placeChangepoints() {
	m.changepoints = nil
	histSize := int(math.Floor(float64(len(m.history)) * m.opts.ChangepointRange))
	count := m.opts.ChangepointCount
	if count > histSize-1 {
		count = histSize - 1
	}
	if count <= 0 {
		return
	}
	for i := 1; i <= count; i++ {
		idx := int(math.Round(float64(i) * float64(histSize-1) / float64(count)))
		m.changepoints = append(m.changepoints, m.scaledTime(m.history[idx].Date))
	}
}

func (m *Model) layoutColumns() {
	col := 2 + len(m.changepoints)
	for _, s := range m.seasonalities {
		m.seasonBlocks[s.name] = block{col, col + 2*s.order}
		col += 2 * s.order
	}

	m.holidayCols = make(map[string]int)
	m.holidayDays = make(map[time.Time][]int)
	holStart := col
	for _, h := range m.opts.Holidays {
		for off := h.LowerWindow; off <= h.UpperWindow; off++ {
			key := fmt.Sprintf("%s%+d", h.Label, off)
			c, ok := m.holidayCols[key]
			if !ok {
				c = col
				m.holidayCols[key] = c
				col++
			}
			d := dayOf(h.Date).AddDate(0, 0, off)
			m.holidayDays[d] = appendUnique(m.holidayDays[d], c)
		}
	}
	m.holidayBlock = block{holStart, col}
	m.nCols = col
}

func (m *Model) priorScales() []float64 {
	priors := make([]float64, m.nCols)
	priors[0], priors[1] = trendPriorScale, trendPriorScale
	for j := 2; j < 2+len(m.changepoints); j++ {
		priors[j] = m.opts.ChangepointPriorScale
	}
	for _, b := range m.seasonBlocks {
		for j := b.start; j < b.end; j++ {
			priors[j] = m.opts.SeasonalityPriorScale
		}
	}
	for j := m.holidayBlock.start; j < m.holidayBlock.end; j++ {
		priors[j] = m.opts.HolidayPriorScale
	}
	return priors
}

func (m *Model) designRow(d time.Time, row []float64) {
	for j := range row {
		row[j] = 0
	}

	t := m.scaledTime(d)
	row[0] = 1
	row[1] = t
	for j, s := range m.changepoints {
		if t > s {
			row[2+j] = t - s
		}
	}

	days := daysBetween(epoch, d)
	for _, s := range m.seasonalities {
		b := m.seasonBlocks[s.name]
		for k := 1; k <= s.order; k++ {
			arg := 2 * math.Pi * float64(k) * days / s.period
			row[b.start+2*(k-1)] = math.Sin(arg)
			row[b.start+2*(k-1)+1] = math.Cos(arg)
		}
	}

	for _, c := range m.holidayDays[dayOf(d)] {
		row[c] = 1
	}
}

func (m *Model) dot(row []float64, b block) float64 {
	var sum float64
	for j := b.start; j < b.end; j++ {
		sum += row[j] * m.beta[j]
	}
	return sum * m.yScale
}

func (m *Model) seasonal(row []float64, name string) float64 {
	b, ok := m.seasonBlocks[name]
	if !ok {
		return 0
	}
	return m.dot(row, b)
}

// changepointStats returns changepoints per unit of scaled time and the mean
// absolute rate change, the Laplace scale used for future trend uncertainty.
func (m *Model) changepointStats() (rate, magnitude float64) {
	if len(m.changepoints) == 0 {
		return 0, 0
	}
	var sum float64
	for j := range m.changepoints {
		sum += math.Abs(m.beta[2+j])
	}
	return float64(len(m.changepoints)), sum / float64(len(m.changepoints))
}

func (m *Model) scaledTime(d time.Time) float64 {
	return daysBetween(m.start, d) / m.tScale
}

func daysBetween(a, b time.Time) float64 {
	return b.Sub(a).Hours() / 24
}

func dayOf(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

func appendUnique(s []int, v int) []int {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}
