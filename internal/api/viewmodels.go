package api

import (
	"time"

	"github.com/lox/aqicast/internal/aqi"
	"github.com/lox/aqicast/internal/models"
	"github.com/lox/aqicast/internal/pipeline"
)

// IndexData is the precomputed view of a pipeline result.
type IndexData struct {
	Title          string
	Run            models.Run
	Headline       models.CalendarRecord
	HeadlineBand   aqi.Category
	Outlook        aqi.Category
	Categories     []aqi.Category
	Records        []models.CalendarRecord
	Months         []MonthView
	ForecastPlot   string
	ComponentsPlot string
	Banner         string
	Card           string
	Flags          map[string]int
}

// MonthView is one month of the calendar heatmap. Lead is the number of
// empty cells before the 1st, with weeks starting on Monday.
type MonthView struct {
	Label string
	Lead  []struct{}
	Days  []DayView
}

type DayView struct {
	Date      string
	Day       int
	Actual    *float64
	Predicted float64
	Forecast  bool
	Category  aqi.Category
}

func buildIndexData(res *pipeline.Result) IndexData {
	data := IndexData{
		Title:          res.Title,
		Run:            res.Run,
		Headline:       res.Headline,
		HeadlineBand:   aqi.Categorize(res.Headline.Predicted),
		Outlook:        res.Outlook,
		Categories:     aqi.Categories(),
		Records:        res.Records,
		Months:         buildMonths(res.Records),
		ForecastPlot:   res.Plots.Forecast,
		ComponentsPlot: res.Plots.Components,
		Flags:          res.Flags,
	}
	return data
}

// buildMonths groups records by month. Days with an actual value are
// coloured by it, others by the prediction.
func buildMonths(records []models.CalendarRecord) []MonthView {
	var months []MonthView
	for _, r := range records {
		d, err := time.Parse("2006-01-02", r.Date)
		if err != nil {
			continue
		}
		label := d.Format("January 2006")
		if len(months) == 0 || months[len(months)-1].Label != label {
			first := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
			lead := (int(first.Weekday()) + 6) % 7
			m := MonthView{Label: label, Lead: make([]struct{}, lead)}
			// Leading blanks for a month whose records start mid-month.
			for i := 1; i < d.Day(); i++ {
				m.Lead = append(m.Lead, struct{}{})
			}
			months = append(months, m)
		}

		value := r.Predicted
		if r.Actual != nil {
			value = *r.Actual
		}
		m := &months[len(months)-1]
		m.Days = append(m.Days, DayView{
			Date:      r.Date,
			Day:       d.Day(),
			Actual:    r.Actual,
			Predicted: r.Predicted,
			Forecast:  r.Actual == nil,
			Category:  aqi.Categorize(value),
		})
	}
	return months
}

type HealthStatus struct {
	Status           string    `json:"status"`
	RunID            string    `json:"run_id"`
	CompletedAt      time.Time `json:"completed_at"`
	LastObserved     string    `json:"last_observed"`
	HorizonEnd       string    `json:"horizon_end"`
	Records          int       `json:"records"`
	ArchiveEnabled   bool      `json:"archive_enabled"`
	MigrationVersion int       `json:"migration_version,omitempty"`
	Errors           []string  `json:"errors,omitempty"`
}

// RunView is the JSON form of an archived run.
type RunView struct {
	ID             string   `json:"id"`
	StartedAt      string   `json:"started_at"`
	CompletedAt    string   `json:"completed_at"`
	Source         string   `json:"source"`
	SourceHash     string   `json:"source_hash,omitempty"`
	Target         string   `json:"target"`
	FirstDate      string   `json:"first_date"`
	LastObserved   string   `json:"last_observed"`
	HorizonEnd     string   `json:"horizon_end"`
	HorizonDays    int      `json:"horizon_days"`
	ObservedDays   int      `json:"observed_days"`
	ForecastDays   int      `json:"forecast_days"`
	ReadingsLoaded int      `json:"readings_loaded"`
	RMSE           *float64 `json:"rmse"`
}

func newRunView(r models.Run) RunView {
	v := RunView{
		ID:             r.ID,
		StartedAt:      r.StartedAt.UTC().Format(time.RFC3339),
		CompletedAt:    r.CompletedAt.UTC().Format(time.RFC3339),
		Source:         r.Source,
		SourceHash:     r.SourceHash,
		Target:         r.Target,
		FirstDate:      r.FirstDate.Format("2006-01-02"),
		LastObserved:   r.LastObserved.Format("2006-01-02"),
		HorizonEnd:     r.HorizonEnd.Format("2006-01-02"),
		HorizonDays:    r.HorizonDays,
		ObservedDays:   r.ObservedDays,
		ForecastDays:   r.ForecastDays,
		ReadingsLoaded: r.ReadingsLoaded,
	}
	if r.RMSE.Valid {
		rmse := r.RMSE.Float64
		v.RMSE = &rmse
	}
	return v
}
