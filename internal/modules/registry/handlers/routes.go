package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all registry routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/registry", func(r chi.Router) {
		// Strategies
		r.Post("/strategies", h.HandleAddStrategy)
		r.Get("/strategies/{asset}", h.HandleListStrategies)
		r.Delete("/strategies/{asset}/{handle}", h.HandleRemoveStrategy)
		r.Put("/strategies/{asset}/{handle}/weight", h.HandleSetWeight)
		r.Post("/strategies/{asset}/{handle}/pause", h.HandlePauseStrategy)
		r.Post("/strategies/{asset}/{handle}/resume", h.HandleResumeStrategy)

		// Assets
		r.Get("/assets", h.HandleListAssets)
		r.Post("/assets", h.HandleAddAsset)
		r.Delete("/assets/{symbol}", h.HandleRemoveAsset)
		r.Post("/assets/{symbol}/pause", h.HandlePauseAsset)
		r.Post("/assets/{symbol}/resume", h.HandleResumeAsset)

		// Chains
		r.Get("/chains", h.HandleListChains)
		r.Post("/chains", h.HandleAddChain)
		r.Put("/chains/{chainID}", h.HandleSetChainEnabled)
	})
}
