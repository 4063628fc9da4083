package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// handleHealth pings every database. Any failure reports 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.cfg.Databases))
	for _, db := range s.cfg.Databases {
		if err := db.HealthCheck(ctx); err != nil {
			s.log.Warn().Err(err).Str("database", db.Name()).Msg("Health check failed")
			checks[db.Name()] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[db.Name()] = "ok"
	}

	response := map[string]interface{}{
		"status":    "healthy",
		"service":   "valuator",
		"databases": checks,
	}
	if status != http.StatusOK {
		response["status"] = "degraded"
	}
	s.writeJSON(w, status, response)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
