// Package handlers provides HTTP handlers for position building and valuation.
package handlers

import (
	"context"
	"net/http"

	"github.com/aristath/valuator/internal/domain"
	"github.com/aristath/valuator/internal/modules/valuation"
	"github.com/aristath/valuator/internal/utils"
	"github.com/rs/zerolog"
)

// Service is what the handlers need from the valuation layer
type Service interface {
	Build(ctx context.Context, portfolio domain.Portfolio, date string) (*domain.Positions, error)
	Positions(ctx context.Context, portfolio domain.Portfolio, date string) (*domain.Positions, error)
	Query(ctx context.Context, query valuation.Query) (*domain.Positions, error)
	Value(ctx context.Context, positions *domain.Positions) (*domain.Positions, error)
}

// Handler handles valuation HTTP requests
type Handler struct {
	service Service
	log     zerolog.Logger
}

// NewHandler creates a new valuation handler
func NewHandler(service Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "valuation").Logger(),
	}
}

// HandlePositions builds and values a portfolio
// POST /portfolio/positions?valuationDate=<date|today>
func (h *Handler) HandlePositions(w http.ResponseWriter, r *http.Request) {
	var portfolio domain.Portfolio
	if err := utils.DecodeBody(r, &portfolio); err != nil {
		h.writeError(w, r, domain.InvalidInput("%s", err.Error()))
		return
	}

	positions, err := h.service.Positions(r.Context(), portfolio, valuationDate(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.write(w, r, http.StatusOK, positions)
}

// HandleBuild returns positions without market values
// POST /portfolio/build?valuationDate=<date|today>
func (h *Handler) HandleBuild(w http.ResponseWriter, r *http.Request) {
	var portfolio domain.Portfolio
	if err := utils.DecodeBody(r, &portfolio); err != nil {
		h.writeError(w, r, domain.InvalidInput("%s", err.Error()))
		return
	}

	positions, err := h.service.Build(r.Context(), portfolio, valuationDate(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.write(w, r, http.StatusOK, positions)
}

// HandleQuery values one asset of a portfolio
// POST /query
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var query valuation.Query
	if err := utils.DecodeBody(r, &query); err != nil {
		h.writeError(w, r, domain.InvalidInput("%s", err.Error()))
		return
	}

	positions, err := h.service.Query(r.Context(), query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.write(w, r, http.StatusOK, positions)
}

// HandleValue applies market data to a built positions document
// POST /value
func (h *Handler) HandleValue(w http.ResponseWriter, r *http.Request) {
	positions := &domain.Positions{}
	if err := utils.DecodeBody(r, positions); err != nil {
		h.writeError(w, r, domain.InvalidInput("%s", err.Error()))
		return
	}

	valued, err := h.service.Value(r.Context(), positions)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.write(w, r, http.StatusOK, valued)
}

func valuationDate(r *http.Request) string {
	if date := r.URL.Query().Get("valuationDate"); date != "" {
		return date
	}
	return domain.Today
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if err := utils.WriteResponse(w, r, status, data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := utils.StatusForError(err)
	event := h.log.Warn()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		event = h.log.Error()
	}
	event.Err(err).Str("path", r.URL.Path).Int("status", status).Msg("Valuation request failed")
	h.write(w, r, status, map[string]string{"error": err.Error()})
}
