package server

import (
	"encoding/json"
	"net/http"

	"github.com/aristath/marketwatch/internal/apperr"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "healthy",
		"data":    map[string]string{"service": "marketwatch"},
	})
}

// handleSchedulerStatus exposes the scheduler's job list, current startup
// mode, and last execution log per job (SPEC_FULL.md's admin surface).
func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "ok",
		"data": map[string]any{
			"mode": s.scheduler.Mode(),
			"jobs": s.scheduler.Status(),
		},
	})
}

// handleTriggerJob runs the named job out of band via the manual trigger
// API (spec §4.I).
func (s *Server) handleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.scheduler.TriggerManual(r.Context(), name); err != nil {
		status := http.StatusInternalServerError
		switch apperr.KindOf(err) {
		case apperr.NotFound:
			status = http.StatusNotFound
		case apperr.ConflictSingleton:
			status = http.StatusConflict
		}
		s.writeJSON(w, status, map[string]any{"success": false, "message": err.Error(), "data": nil})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "triggered", "data": map[string]string{"job": name}})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("failed to encode JSON response")
	}
}
