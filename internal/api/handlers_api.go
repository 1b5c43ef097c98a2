package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/lox/aqicast/internal/calendar"
	"github.com/lox/aqicast/internal/models"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: write json: %v", err)
	}
}

func (s *Server) handleAPICalendar(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.result.Records)
}

func (s *Server) handleCalendarCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="calendar.csv"`)
	if err := calendar.WriteCSV(w, s.result.Records); err != nil {
		log.Printf("api: write calendar csv: %v", err)
	}
}

func (s *Server) handleAPIRuns(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeJSON(w, []RunView{newRunView(s.result.Run)})
		return
	}

	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := s.archive.ListRuns(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	views := make([]RunView, 0, len(runs))
	for _, run := range runs {
		views = append(views, newRunView(run))
	}
	writeJSON(w, views)
}

type runDetail struct {
	RunView
	Records []models.CalendarRecord `json:"records"`
}

func (s *Server) handleAPIRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == s.result.Run.ID {
		writeJSON(w, runDetail{RunView: newRunView(s.result.Run), Records: s.result.Records})
		return
	}
	if s.archive == nil {
		http.NotFound(w, r)
		return
	}

	run, err := s.archive.GetRun(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.NotFound(w, r)
		return
	}
	records, err := s.archive.GetRunRecords(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, runDetail{RunView: newRunView(*run), Records: records})
}
