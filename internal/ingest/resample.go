package ingest

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/lox/aqicast/internal/models"
)

// dayAccumulator holds the present values of each field for one day.
type dayAccumulator struct {
	values [][]float64
}

// mean sums the sorted values so the result is the same for any input order.
func mean(vals []float64) float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	return floats.Sum(sorted) / float64(len(sorted))
}

// ResampleDaily averages readings into one row per calendar day, from the
// first to the last observed day. Days without readings are kept with every
// value missing. The result does not depend on the order of readings.
func ResampleDaily(schema models.Schema, readings []models.Reading) models.DailySeries {
	out := models.DailySeries{Schema: schema}
	if len(readings) == 0 {
		return out
	}

	n := len(schema.Fields)
	days := make(map[time.Time]*dayAccumulator)
	var first, last time.Time
	for i, r := range readings {
		day := DayOf(r.Timestamp)
		if i == 0 || day.Before(first) {
			first = day
		}
		if i == 0 || day.After(last) {
			last = day
		}
		acc := days[day]
		if acc == nil {
			acc = &dayAccumulator{values: make([][]float64, n)}
			days[day] = acc
		}
		for j, v := range r.Values {
			if j >= n || !v.Valid {
				continue
			}
			acc.values[j] = append(acc.values[j], v.Float64)
		}
	}

	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		row := models.DailyRow{Date: day, Values: make([]sql.NullFloat64, n)}
		if acc := days[day]; acc != nil {
			for j := 0; j < n; j++ {
				if len(acc.values[j]) > 0 {
					row.Values[j] = sql.NullFloat64{Float64: mean(acc.values[j]), Valid: true}
				}
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

// DayOf returns the calendar day of t's wall clock as UTC midnight.
func DayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// PrepareSeries projects the daily series onto a single target field and drops
// days where it is missing. An entirely missing target gives an empty series.
func PrepareSeries(daily models.DailySeries, target string) ([]models.SeriesPoint, error) {
	idx := daily.Schema.FieldIndex(target)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, target)
	}

	points := make([]models.SeriesPoint, 0, len(daily.Rows))
	for _, row := range daily.Rows {
		v := row.Values[idx]
		if !v.Valid {
			continue
		}
		points = append(points, models.SeriesPoint{Date: row.Date, Value: v.Float64})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}
