// Package pipeline runs the startup forecast: ingest, resample, fit,
// forecast, assemble and render. Its Result is the read-only state the web
// server presents.
package pipeline

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/lox/aqicast/internal/aqi"
	"github.com/lox/aqicast/internal/calendar"
	"github.com/lox/aqicast/internal/forecast"
	"github.com/lox/aqicast/internal/holidays"
	"github.com/lox/aqicast/internal/ingest"
	"github.com/lox/aqicast/internal/metrics"
	"github.com/lox/aqicast/internal/models"
	"github.com/lox/aqicast/internal/plot"
	"github.com/lox/aqicast/internal/source"
)

const DefaultTitle = "Delhi PM2.5 Forecast"

type Config struct {
	Input      string
	TimeColumn string
	Target     string
	HorizonEnd time.Time
	StaticDir  string
	Title      string
	Options    forecast.Options
}

// Archive records completed runs. Failures are logged, never fatal.
type Archive interface {
	StoreSnapshot(location string, payload []byte) (string, error)
	InsertRun(run models.Run, records []models.CalendarRecord) error
}

type Result struct {
	Run      models.Run
	Schema   models.Schema
	Title    string
	Observed []models.SeriesPoint
	Forecast []models.ForecastPoint
	Records  []models.CalendarRecord
	Plots    plot.Files
	Flags    map[string]int
	// Outlook is the most common category over the forecast-only days.
	Outlook aqi.Category
	// Headline is the record for the terminal date.
	Headline models.CalendarRecord
}

// Run executes every stage once. archive may be nil.
func Run(ctx context.Context, cfg Config, archive Archive) (*Result, error) {
	if cfg.Title == "" {
		cfg.Title = DefaultTitle
	}
	run := models.Run{
		ID:         uuid.NewString(),
		StartedAt:  time.Now().UTC(),
		Source:     cfg.Input,
		Target:     cfg.Target,
		HorizonEnd: ingest.DayOf(cfg.HorizonEnd),
	}
	log.Printf("pipeline: run %s starting (input %s, target %s, horizon end %s)",
		run.ID, cfg.Input, cfg.Target, run.HorizonEnd.Format("2006-01-02"))

	var payload []byte
	err := stage("fetch", func() error {
		rc, err := source.Open(ctx, cfg.Input)
		if err != nil {
			return err
		}
		defer rc.Close()
		payload, err = io.ReadAll(rc)
		if err != nil {
			return fmt.Errorf("read %s: %w", cfg.Input, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var (
		schema   models.Schema
		readings []models.Reading
	)
	err = stage("ingest", func() error {
		schema, readings, err = ingest.ReadReadings(bytes.NewReader(payload), cfg.TimeColumn)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", cfg.Input, err)
	}
	run.ReadingsLoaded = len(readings)
	metrics.ReadingsIngested.Add(float64(len(readings)))

	flags := ingest.CountFlags(readings)
	for flag, n := range flags {
		metrics.ReadingsFlagged.WithLabelValues(flag).Add(float64(n))
		log.Printf("pipeline: %d readings flagged %s", n, flag)
	}

	var observed []models.SeriesPoint
	err = stage("resample", func() error {
		daily := ingest.ResampleDaily(schema, readings)
		observed, err = ingest.PrepareSeries(daily, cfg.Target)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Printf("pipeline: %d readings, %d observed days of %s", len(readings), len(observed), cfg.Target)

	opts := cfg.Options
	opts.Holidays = holidays.Windows()
	model := forecast.New(opts)

	var points []models.ForecastPoint
	err = stage("fit", func() error {
		if err := model.Fit(observed); err != nil {
			return fmt.Errorf("fit %s: %w", cfg.Target, err)
		}
		horizon, err := forecast.Horizon(model.End(), run.HorizonEnd)
		if err != nil {
			return err
		}
		run.HorizonDays = horizon
		dates, err := model.MakeFuture(horizon)
		if err != nil {
			return err
		}
		points, err = model.Predict(dates)
		return err
	})
	if err != nil {
		return nil, err
	}
	run.FirstDate = model.Start()
	run.LastObserved = model.End()
	run.ObservedDays = len(observed)
	run.RMSE = sql.NullFloat64{Float64: model.RMSE(), Valid: true}
	log.Printf("pipeline: fitted %s to %s, rmse %.2f, forecasting %d days",
		run.FirstDate.Format("2006-01-02"), run.LastObserved.Format("2006-01-02"), model.RMSE(), run.HorizonDays)

	records := calendar.Assemble(observed, points)
	run.ForecastDays = len(records)

	var files plot.Files
	err = stage("plot", func() error {
		labels := plot.Labels{Title: cfg.Title, XLabel: "Date", YLabel: yLabel(cfg.Target)}
		files, err = plot.WriteAll(cfg.StaticDir, observed, points, model, labels)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("render plots in %s: %w", filepath.Clean(cfg.StaticDir), err)
	}

	run.CompletedAt = time.Now().UTC()
	metrics.ObservedDays.Set(float64(run.ObservedDays))
	metrics.ForecastPoints.Set(float64(run.ForecastDays))
	metrics.ModelRMSE.Set(model.RMSE())

	if archive != nil {
		archiveRun(archive, &run, payload, records)
	}

	res := &Result{
		Run:      run,
		Schema:   schema,
		Title:    cfg.Title,
		Observed: observed,
		Forecast: points,
		Records:  records,
		Plots:    files,
		Flags:    flags,
		Outlook:  outlook(records, run.LastObserved),
		Headline: records[len(records)-1],
	}
	log.Printf("pipeline: run %s complete in %s, %d calendar records", run.ID, run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond), len(records))
	return res, nil
}

func archiveRun(archive Archive, run *models.Run, payload []byte, records []models.CalendarRecord) {
	hash, err := archive.StoreSnapshot(run.Source, payload)
	if err != nil {
		log.Printf("pipeline: archive snapshot: %v", err)
	}
	run.SourceHash = hash

	if err := archive.InsertRun(*run, records); err != nil {
		metrics.ArchiveWritesTotal.WithLabelValues("error").Inc()
		log.Printf("pipeline: archive run %s: %v", run.ID, err)
		return
	}
	metrics.ArchiveWritesTotal.WithLabelValues("ok").Inc()
}

func stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return err
}

func outlook(records []models.CalendarRecord, lastObserved time.Time) aqi.Category {
	cutoff := lastObserved.Format("2006-01-02")
	var future []float64
	for _, r := range records {
		if r.Date > cutoff {
			future = append(future, r.Predicted)
		}
	}
	if c, ok := aqi.Dominant(future); ok {
		return c
	}
	return aqi.Categorize(records[len(records)-1].Predicted)
}

func yLabel(target string) string {
	if target == "pm2_5" {
		return "Predicted PM2.5 (µg/m³)"
	}
	return "Predicted " + target
}
