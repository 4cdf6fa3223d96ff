// Package handlers provides HTTP handlers for the ledger's read surface.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/royaltyfi/vaultd/internal/modules/ledger"
)

// Handler handles ledger HTTP requests
type Handler struct {
	service *ledger.Service
	log     zerolog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(service *ledger.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "ledger").Logger(),
	}
}

// HandleGetSummary handles GET /api/ledger/{asset}
func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")

	summary, err := h.service.Summary(asset)
	if err != nil {
		h.log.Error().Err(err).Str("asset", asset).Msg("Failed to build ledger summary")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": summary,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetStrategyLedger handles GET /api/ledger/{asset}/strategies/{handle}
func (h *Handler) HandleGetStrategyLedger(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	handle := chi.URLParam(r, "handle")

	entry, err := h.service.StrategyLedger(asset, handle)
	if err != nil {
		h.log.Error().Err(err).Str("asset", asset).Str("handle", handle).Msg("Failed to load strategy ledger")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": entry,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetShares handles GET /api/ledger/{asset}/shares/{owner}
func (h *Handler) HandleGetShares(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	owner := chi.URLParam(r, "owner")

	shares, err := h.service.SharesOf(owner, asset)
	if err != nil {
		h.log.Error().Err(err).Str("asset", asset).Str("owner", owner).Msg("Failed to load shares")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	supply, err := h.service.TotalShares(asset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"owner":        owner,
			"asset":        asset,
			"shares":       shares,
			"total_shares": supply,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetEvents handles GET /api/ledger/{asset}/events?limit=N
func (h *Handler) HandleGetEvents(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := h.service.RecentEvents(asset, limit)
	if err != nil {
		h.log.Error().Err(err).Str("asset", asset).Msg("Failed to load audit events")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"asset":  asset,
			"events": entries,
			"count":  len(entries),
		},
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
