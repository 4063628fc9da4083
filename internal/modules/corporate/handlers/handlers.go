// Package handlers provides HTTP handlers for corporate event resolution.
package handlers

import (
	"context"
	"net/http"

	"github.com/aristath/valuator/internal/domain"
	"github.com/aristath/valuator/internal/modules/corporate"
	"github.com/aristath/valuator/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Service is what the handlers need from corporate event resolution
type Service interface {
	Resolve(ctx context.Context, req corporate.Request) (*corporate.Result, error)
}

// Handler handles corporate event HTTP requests
type Handler struct {
	service Service
	log     zerolog.Logger
}

// NewHandler creates a new corporate event handler
func NewHandler(service Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "corporate").Logger(),
	}
}

// RegisterRoutes registers the corporate event routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/corporate-events", h.HandleResolve)
}

// HandleResolve resolves a dividend or split for a portfolio
// POST /corporate-events
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	var req corporate.Request
	if err := utils.DecodeBody(r, &req); err != nil {
		h.writeError(w, r, domain.InvalidInput("%s", err.Error()))
		return
	}

	result, err := h.service.Resolve(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if result.Recorded {
		status = http.StatusCreated
	}
	h.write(w, r, status, result)
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if err := utils.WriteResponse(w, r, status, data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := utils.StatusForError(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Corporate event request failed")
	}
	h.write(w, r, status, map[string]string{"error": err.Error()})
}
