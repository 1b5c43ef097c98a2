package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aqicast_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	SourceFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aqicast_source_fetches_total",
			Help: "Total input source fetches",
		},
		[]string{"scheme", "status"},
	)

	ReadingsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aqicast_readings_ingested_total",
			Help: "Total CSV readings successfully parsed",
		},
	)

	ReadingsFlagged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aqicast_readings_flagged_total",
			Help: "Readings carrying a quality flag",
		},
		[]string{"flag"},
	)

	ObservedDays = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aqicast_observed_days",
			Help: "Days with an observed target value in the last run",
		},
	)

	ForecastPoints = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aqicast_forecast_points",
			Help: "Calendar records produced by the last run",
		},
	)

	ModelRMSE = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aqicast_model_rmse",
			Help: "In-sample root mean squared error of the last fit",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aqicast_http_requests_total",
			Help: "HTTP requests served",
		},
		[]string{"path", "status"},
	)

	BannerGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aqicast_banner_generations_total",
			Help: "Banner image generation attempts",
		},
		[]string{"status"},
	)

	ArchiveWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aqicast_archive_writes_total",
			Help: "Forecast run archive writes",
		},
		[]string{"status"},
	)
)
