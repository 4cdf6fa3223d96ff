package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all ledger routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/ledger", func(r chi.Router) {
		r.Get("/{asset}", h.HandleGetSummary)
		r.Get("/{asset}/events", h.HandleGetEvents)
		r.Get("/{asset}/strategies/{handle}", h.HandleGetStrategyLedger)
		r.Get("/{asset}/shares/{owner}", h.HandleGetShares)
	})
}
