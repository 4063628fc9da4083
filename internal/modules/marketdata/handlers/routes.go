package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all market data routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/prices", func(r chi.Router) {
		r.Post("/", h.HandleStorePrices)
		r.Get("/", h.HandleGetPrices)
	})
	r.Route("/fx", func(r chi.Router) {
		r.Post("/", h.HandleStoreRates)
		r.Get("/{from}/{to}", h.HandleGetRate)
	})
}
