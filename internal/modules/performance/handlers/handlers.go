// Package handlers provides HTTP handlers for performance series and the
// snapshot cache.
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/aristath/valuator/internal/domain"
	"github.com/aristath/valuator/internal/events"
	"github.com/aristath/valuator/internal/modules/performance"
	"github.com/aristath/valuator/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Service is what the handlers need from the performance layer
type Service interface {
	Series(ctx context.Context, portfolio domain.Portfolio, from, to string) (*performance.Series, error)
	Snapshot(ctx context.Context, portfolioID, date string) (*domain.CachedSnapshot, error)
	Invalidate(ctx context.Context, portfolioID string) error
}

// InvalidationRequest announces an upstream data change
type InvalidationRequest struct {
	ChangeType  string `json:"changeType" msgpack:"changeType"`
	PortfolioID string `json:"portfolioId,omitempty" msgpack:"portfolioId,omitempty"`
	FromDate    string `json:"fromDate" msgpack:"fromDate"`
}

// Handler handles performance HTTP requests
type Handler struct {
	service Service
	events  *events.Manager
	log     zerolog.Logger
}

// NewHandler creates a new performance handler
func NewHandler(service Service, eventManager *events.Manager, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		events:  eventManager,
		log:     log.With().Str("handler", "performance").Logger(),
	}
}

// HandleSeries returns the daily snapshot series and its time-weighted return
// POST /portfolio/performance?from=&to=
func (h *Handler) HandleSeries(w http.ResponseWriter, r *http.Request) {
	var portfolio domain.Portfolio
	if err := utils.DecodeBody(r, &portfolio); err != nil {
		h.writeError(w, r, domain.InvalidInput("%s", err.Error()))
		return
	}

	to := r.URL.Query().Get("to")
	if to == "" {
		to = domain.Today
	}
	series, err := h.service.Series(r.Context(), portfolio, r.URL.Query().Get("from"), to)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.write(w, r, http.StatusOK, series)
}

// HandleGetSnapshot returns one cached snapshot
// GET /performance/{portfolioId}/snapshots/{date}
func (h *Handler) HandleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.Snapshot(r.Context(), chi.URLParam(r, "portfolioId"), chi.URLParam(r, "date"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.write(w, r, http.StatusOK, snapshot)
}

// HandleInvalidatePortfolio drops every cached snapshot of a portfolio
// DELETE /performance/{portfolioId}
func (h *Handler) HandleInvalidatePortfolio(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Invalidate(r.Context(), chi.URLParam(r, "portfolioId")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleInvalidation accepts a change notification and publishes it on the
// event bus. Invalidation happens asynchronously.
// POST /cache/invalidations
func (h *Handler) HandleInvalidation(w http.ResponseWriter, r *http.Request) {
	var req InvalidationRequest
	if err := utils.DecodeBody(r, &req); err != nil {
		h.writeError(w, r, domain.InvalidInput("%s", err.Error()))
		return
	}

	data, err := req.eventData()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	event := h.events.Emit(data.EventType(), "performance", data)
	response := map[string]string{"status": "accepted", "type": string(data.EventType())}
	if event != nil {
		response["eventId"] = event.ID
	}
	h.write(w, r, http.StatusAccepted, response)
}

func (req InvalidationRequest) eventData() (events.EventData, error) {
	change, ok := events.ParseChangeType(req.ChangeType)
	if !ok {
		return nil, domain.InvalidInput("unknown changeType %q", req.ChangeType)
	}
	if _, err := domain.ParseDate(req.FromDate); err != nil {
		return nil, domain.InvalidInput("fromDate: %s", err.Error())
	}

	switch change {
	case events.ChangeTransaction:
		if strings.TrimSpace(req.PortfolioID) == "" {
			return nil, domain.InvalidInput("portfolioId is required for %s changes", change)
		}
		return &events.TransactionChangedData{PortfolioID: req.PortfolioID, FromDate: req.FromDate}, nil
	case events.ChangePrice:
		return &events.PriceChangedData{FromDate: req.FromDate}, nil
	case events.ChangeFx:
		return &events.FxChangedData{FromDate: req.FromDate}, nil
	}
	return nil, domain.InvalidInput("unknown changeType %q", req.ChangeType)
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if err := utils.WriteResponse(w, r, status, data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := utils.StatusForError(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("Performance request failed")
	} else {
		h.log.Debug().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("Performance request rejected")
	}
	h.write(w, r, status, map[string]string{"error": err.Error()})
}
