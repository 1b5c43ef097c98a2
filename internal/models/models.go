package models

import (
	"database/sql"
	"time"
)

// Schema names the columns of an ingested readings file.
type Schema struct {
	TimeColumn string
	Fields     []string // numeric columns, header order
}

// FieldIndex returns the position of name in Fields, or -1.
func (s Schema) FieldIndex(name string) int {
	for i, f := range s.Fields {
		if f == name {
			return i
		}
	}
	return -1
}

type Reading struct {
	Timestamp time.Time
	Values    []sql.NullFloat64 // aligned with Schema.Fields
}

type DailyRow struct {
	Date   time.Time // UTC midnight
	Values []sql.NullFloat64
}

type DailySeries struct {
	Schema Schema
	Rows   []DailyRow
}

// SeriesPoint is one observed (date, value) pair of the modelled series.
type SeriesPoint struct {
	Date  time.Time
	Value float64
}

type HolidayWindow struct {
	Label       string
	Festival    string // "Diwali", "Holi"
	Date        time.Time
	LowerWindow int
	UpperWindow int
}

type ForecastPoint struct {
	Date      time.Time
	Yhat      float64
	YhatLower float64
	YhatUpper float64
	Trend     float64
	Yearly    float64
	Weekly    float64
	Daily     float64
	Holidays  float64
}

// CalendarRecord is one day of the actual vs. predicted calendar.
// Actual is nil when no observation exists for the date.
type CalendarRecord struct {
	Date      string   `json:"ds"`
	Actual    *float64 `json:"y"`
	Predicted float64  `json:"yhat"`
}

type Run struct {
	ID             string
	StartedAt      time.Time
	CompletedAt    time.Time
	Source         string
	SourceHash     string
	Target         string
	FirstDate      time.Time
	LastObserved   time.Time
	HorizonEnd     time.Time
	HorizonDays    int
	ObservedDays   int
	ForecastDays   int
	RMSE           sql.NullFloat64
	ReadingsLoaded int
}
