// Package handlers provides HTTP handlers for stored market data.
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/aristath/valuator/internal/domain"
	"github.com/aristath/valuator/internal/modules/marketdata"
	"github.com/aristath/valuator/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Service is what the handlers need from the market data store
type Service interface {
	StorePrices(ctx context.Context, prices []marketdata.StoredPrice) error
	StoreRates(ctx context.Context, rates []marketdata.StoredRate) error
	Prices(ctx context.Context, assetIDs []string, date string) (map[string]domain.PriceData, error)
	Rate(ctx context.Context, pair domain.CurrencyPair, date string) (*marketdata.StoredRate, error)
}

// Handler handles market data HTTP requests
type Handler struct {
	service Service
	log     zerolog.Logger
}

// NewHandler creates a new market data handler
func NewHandler(service Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "marketdata").Logger(),
	}
}

// HandleStorePrices stores price overrides
// POST /prices
func (h *Handler) HandleStorePrices(w http.ResponseWriter, r *http.Request) {
	var prices []marketdata.StoredPrice
	if err := utils.DecodeBody(r, &prices); err != nil {
		h.writeError(w, r, domain.InvalidInput("%s", err.Error()))
		return
	}
	if err := h.service.StorePrices(r.Context(), prices); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.write(w, r, http.StatusCreated, map[string]int{"stored": len(prices)})
}

// HandleGetPrices returns stored prices
// GET /prices?date=&assetId=A&assetId=B
func (h *Handler) HandleGetPrices(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var ids []string
	for _, v := range query["assetId"] {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		h.writeError(w, r, domain.InvalidInput("at least one assetId is required"))
		return
	}

	prices, err := h.service.Prices(r.Context(), ids, query.Get("date"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.write(w, r, http.StatusOK, prices)
}

// HandleStoreRates stores FX overrides
// POST /fx
func (h *Handler) HandleStoreRates(w http.ResponseWriter, r *http.Request) {
	var rates []marketdata.StoredRate
	if err := utils.DecodeBody(r, &rates); err != nil {
		h.writeError(w, r, domain.InvalidInput("%s", err.Error()))
		return
	}
	if err := h.service.StoreRates(r.Context(), rates); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.write(w, r, http.StatusCreated, map[string]int{"stored": len(rates)})
}

// HandleGetRate returns one stored FX rate
// GET /fx/{from}/{to}?date=
func (h *Handler) HandleGetRate(w http.ResponseWriter, r *http.Request) {
	pair := domain.CurrencyPair{
		From: domain.Currency(strings.ToUpper(chi.URLParam(r, "from"))),
		To:   domain.Currency(strings.ToUpper(chi.URLParam(r, "to"))),
	}
	rate, err := h.service.Rate(r.Context(), pair, r.URL.Query().Get("date"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.write(w, r, http.StatusOK, rate)
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if err := utils.WriteResponse(w, r, status, data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := utils.StatusForError(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Market data request failed")
	}
	h.write(w, r, status, map[string]string{"error": err.Error()})
}
