package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all ledger routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/trns", func(r chi.Router) {
		r.Post("/", h.HandleRecord)
		r.Get("/{portfolioId}", h.HandleList)
		r.Get("/{portfolioId}/{id}", h.HandleGet)
		r.Delete("/{portfolioId}/{id}", h.HandleDelete)
	})
}
