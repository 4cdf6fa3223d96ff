// Package handlers provides HTTP handlers for yield analytics.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/royaltyfi/vaultd/internal/modules/analytics"
)

// Handler handles analytics HTTP requests
type Handler struct {
	service *analytics.Service
	log     zerolog.Logger
}

// NewHandler creates a new analytics handler
func NewHandler(service *analytics.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "analytics").Logger(),
	}
}

// HandleAssetStats handles GET /api/analytics/harvest/{asset}
func (h *Handler) HandleAssetStats(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")

	stats, err := h.service.AssetStats(asset)
	if err != nil {
		h.log.Error().Err(err).Str("asset", asset).Msg("Failed to compute harvest stats")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"asset":      asset,
			"strategies": stats,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleStrategyStats handles GET /api/analytics/harvest/{asset}/{handle}
func (h *Handler) HandleStrategyStats(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	handle := chi.URLParam(r, "handle")

	stats, err := h.service.StrategyStats(asset, handle)
	if err != nil {
		h.log.Error().Err(err).Str("asset", asset).Str("handle", handle).Msg("Failed to compute harvest stats")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": stats,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
