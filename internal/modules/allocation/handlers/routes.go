package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all allocation engine routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/allocation", func(r chi.Router) {
		r.Post("/deploy", h.HandleDeploy)
		r.Post("/harvest/{asset}", h.HandleHarvest)
		r.Post("/emergency-exit/{asset}", h.HandleEmergencyExit)
	})
}
