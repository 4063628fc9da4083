package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all performance routes. /portfolio is mounted by
// the valuation handlers so the series route is registered flat.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/portfolio/performance", h.HandleSeries) // Snapshot series + TWR

	r.Route("/performance/{portfolioId}", func(r chi.Router) {
		r.Get("/snapshots/{date}", h.HandleGetSnapshot)
		r.Delete("/", h.HandleInvalidatePortfolio)
	})

	r.Post("/cache/invalidations", h.HandleInvalidation) // 202, handled on the event bus
}
