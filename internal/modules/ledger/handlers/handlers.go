// Package handlers provides HTTP handlers for the transaction ledger.
package handlers

import (
	"context"
	"net/http"

	"github.com/aristath/valuator/internal/domain"
	"github.com/aristath/valuator/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Service is what the handlers need from the ledger
type Service interface {
	Record(ctx context.Context, trns []domain.Transaction) ([]domain.Transaction, error)
	List(ctx context.Context, portfolioID, assetID, toDate string) ([]domain.Transaction, error)
	Get(ctx context.Context, portfolioID, id string) (*domain.Transaction, error)
	Delete(ctx context.Context, portfolioID, id string) error
}

// Handler handles ledger HTTP requests
type Handler struct {
	service Service
	log     zerolog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(service Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "ledger").Logger(),
	}
}

// HandleRecord stores a batch of transactions
// POST /trns
func (h *Handler) HandleRecord(w http.ResponseWriter, r *http.Request) {
	var trns []domain.Transaction
	if err := utils.DecodeBody(r, &trns); err != nil {
		h.writeError(w, r, domain.InvalidInput("%s", err.Error()))
		return
	}

	saved, err := h.service.Record(r.Context(), trns)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.write(w, r, http.StatusCreated, saved)
}

// HandleList returns a portfolio's transactions
// GET /trns/{portfolioId}?assetId=&toDate=
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	trns, err := h.service.List(r.Context(),
		chi.URLParam(r, "portfolioId"),
		r.URL.Query().Get("assetId"),
		r.URL.Query().Get("toDate"),
	)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if trns == nil {
		trns = []domain.Transaction{}
	}
	h.write(w, r, http.StatusOK, trns)
}

// HandleGet returns one transaction
// GET /trns/{portfolioId}/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	trn, err := h.service.Get(r.Context(), chi.URLParam(r, "portfolioId"), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.write(w, r, http.StatusOK, trn)
}

// HandleDelete removes one transaction
// DELETE /trns/{portfolioId}/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "portfolioId"), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if err := utils.WriteResponse(w, r, status, data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := utils.StatusForError(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Ledger request failed")
	}
	h.write(w, r, status, map[string]string{"error": err.Error()})
}
