package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all valuation routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolio", func(r chi.Router) {
		r.Post("/positions", h.HandlePositions) // Built and valued
		r.Post("/build", h.HandleBuild)         // Quantities and cost only
	})
	r.Post("/query", h.HandleQuery) // One asset, used by corporate event fan-out
	r.Post("/value", h.HandleValue) // Value a built document
}
