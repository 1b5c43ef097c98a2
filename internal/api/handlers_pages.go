package api

import (
	"encoding/json"
	"log"
	"net/http"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "index.html", s.index); err != nil {
		log.Printf("api: render index: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	run := s.result.Run
	health := HealthStatus{
		Status:         "ok",
		RunID:          run.ID,
		CompletedAt:    run.CompletedAt,
		LastObserved:   run.LastObserved.Format("2006-01-02"),
		HorizonEnd:     run.HorizonEnd.Format("2006-01-02"),
		Records:        len(s.result.Records),
		ArchiveEnabled: s.archive != nil,
	}

	if s.archive != nil {
		version, err := s.archive.MigrationVersion()
		if err != nil {
			health.Status = "degraded"
			health.Errors = append(health.Errors, "archive: "+err.Error())
		}
		health.MigrationVersion = version
	}

	w.Header().Set("Content-Type", "application/json")
	if health.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(health); err != nil {
		log.Printf("health: write response: %v", err)
	}
}
