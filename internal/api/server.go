package api

import (
	"context"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/aqicast/internal/metrics"
	"github.com/lox/aqicast/internal/models"
	"github.com/lox/aqicast/internal/pipeline"
)

// RunArchive is the read side of the run history.
type RunArchive interface {
	ListRuns(limit int) ([]models.Run, error)
	GetRun(id string) (*models.Run, error)
	GetRunRecords(runID string) ([]models.CalendarRecord, error)
	MigrationVersion() (int, error)
}

type Server struct {
	result    *pipeline.Result
	archive   RunArchive
	addr      string
	staticDir string
	tmpl      *template.Template
	index     IndexData
}

// NewServer presents result. archive may be nil when history is disabled.
func NewServer(result *pipeline.Result, archive RunArchive, addr, staticDir string) *Server {
	return &Server{
		result:    result,
		archive:   archive,
		addr:      addr,
		staticDir: staticDir,
		tmpl:      newTemplates(),
		index:     buildIndexData(result),
	}
}

// SetBanner sets the banner image filename, relative to the static dir.
func (s *Server) SetBanner(filename string) {
	s.index.Banner = filename
}

// SetCard sets the social preview image filename, relative to the static dir.
func (s *Server) SetCard(filename string) {
	s.index.Card = filename
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(s.staticDir))))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/calendar", s.handleAPICalendar)
	mux.HandleFunc("GET /calendar.csv", s.handleCalendarCSV)
	mux.HandleFunc("GET /api/runs", s.handleAPIRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleAPIRun)
	mux.Handle("GET /metrics", promhttp.Handler())
	return countRequests(mux)
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("api: listening on %s", s.addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// countRequests labels requests by matched route pattern, so unknown paths
// share one series.
func countRequests(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		_, pattern := mux.Handler(r)
		mux.ServeHTTP(rec, r)
		if pattern == "" {
			pattern = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(pattern, strconv.Itoa(rec.status)).Inc()
	})
}
