package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all vault routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/vault", func(r chi.Router) {
		r.Post("/deposit", h.HandleDeposit)
		r.Post("/withdraw", h.HandleWithdraw)
		r.Post("/bridge/receive", h.HandleBridgeIn)
		r.Post("/bridge/send", h.HandleBridgeOut)
	})
}
