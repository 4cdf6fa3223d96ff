// Package handlers provides HTTP handlers for registry operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/royaltyfi/vaultd/internal/auth"
	"github.com/royaltyfi/vaultd/internal/domain"
	"github.com/royaltyfi/vaultd/internal/modules/registry"
)

// Handler handles registry HTTP requests
type Handler struct {
	service *registry.Service
	log     zerolog.Logger
}

// NewHandler creates a new registry handler
func NewHandler(service *registry.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "registry").Logger(),
	}
}

// AddStrategyRequest represents a request to register a strategy
type AddStrategyRequest struct {
	Asset  string `json:"asset"`
	Handle string `json:"handle"`
}

// SetWeightRequest represents a request to change a strategy's weight
type SetWeightRequest struct {
	WeightBps int64 `json:"weight_bps"`
}

// AddAssetRequest represents a request to whitelist an asset
type AddAssetRequest struct {
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// AddChainRequest represents a request to whitelist a destination chain
type AddChainRequest struct {
	ChainID int64  `json:"chain_id"`
	Name    string `json:"name"`
}

// SetChainEnabledRequest represents a request to toggle a chain
type SetChainEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// HandleAddStrategy handles POST /api/registry/strategies
func (h *Handler) HandleAddStrategy(w http.ResponseWriter, r *http.Request) {
	var req AddStrategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.AddStrategy(auth.PrincipalFromContext(r.Context()), req.Asset, req.Handle); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"data": map[string]interface{}{
			"asset":  req.Asset,
			"handle": req.Handle,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleRemoveStrategy handles DELETE /api/registry/strategies/{asset}/{handle}
func (h *Handler) HandleRemoveStrategy(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	handle := chi.URLParam(r, "handle")

	if err := h.service.RemoveStrategy(auth.PrincipalFromContext(r.Context()), asset, handle); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{"removed": handle},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleSetWeight handles PUT /api/registry/strategies/{asset}/{handle}/weight
func (h *Handler) HandleSetWeight(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	handle := chi.URLParam(r, "handle")

	var req SetWeightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.SetWeight(auth.PrincipalFromContext(r.Context()), asset, handle, req.WeightBps); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"asset":      asset,
			"handle":     handle,
			"weight_bps": req.WeightBps,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandlePauseStrategy handles POST /api/registry/strategies/{asset}/{handle}/pause
func (h *Handler) HandlePauseStrategy(w http.ResponseWriter, r *http.Request) {
	h.toggleStrategy(w, r, true)
}

// HandleResumeStrategy handles POST /api/registry/strategies/{asset}/{handle}/resume
func (h *Handler) HandleResumeStrategy(w http.ResponseWriter, r *http.Request) {
	h.toggleStrategy(w, r, false)
}

func (h *Handler) toggleStrategy(w http.ResponseWriter, r *http.Request, pause bool) {
	asset := chi.URLParam(r, "asset")
	handle := chi.URLParam(r, "handle")
	caller := auth.PrincipalFromContext(r.Context())

	var err error
	if pause {
		err = h.service.PauseStrategy(caller, asset, handle)
	} else {
		err = h.service.ResumeStrategy(caller, asset, handle)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"asset":  asset,
			"handle": handle,
			"paused": pause,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleListStrategies handles GET /api/registry/strategies/{asset}
func (h *Handler) HandleListStrategies(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")

	strategies, err := h.service.ListStrategies(asset)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"asset":      asset,
			"strategies": strategies,
			"count":      len(strategies),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleAddAsset handles POST /api/registry/assets
func (h *Handler) HandleAddAsset(w http.ResponseWriter, r *http.Request) {
	var req AddAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.AddAsset(auth.PrincipalFromContext(r.Context()), req.Symbol, req.Decimals); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"data": map[string]interface{}{
			"symbol":   req.Symbol,
			"decimals": req.Decimals,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleRemoveAsset handles DELETE /api/registry/assets/{symbol}
func (h *Handler) HandleRemoveAsset(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	if err := h.service.RemoveAsset(auth.PrincipalFromContext(r.Context()), symbol); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{"removed": symbol},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandlePauseAsset handles POST /api/registry/assets/{symbol}/pause
func (h *Handler) HandlePauseAsset(w http.ResponseWriter, r *http.Request) {
	h.toggleAsset(w, r, true)
}

// HandleResumeAsset handles POST /api/registry/assets/{symbol}/resume
func (h *Handler) HandleResumeAsset(w http.ResponseWriter, r *http.Request) {
	h.toggleAsset(w, r, false)
}

func (h *Handler) toggleAsset(w http.ResponseWriter, r *http.Request, pause bool) {
	symbol := chi.URLParam(r, "symbol")
	caller := auth.PrincipalFromContext(r.Context())

	var err error
	if pause {
		err = h.service.PauseAsset(caller, symbol)
	} else {
		err = h.service.ResumeAsset(caller, symbol)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"symbol": symbol,
			"paused": pause,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleListAssets handles GET /api/registry/assets
func (h *Handler) HandleListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.service.ListAssets()
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"assets": assets,
			"count":  len(assets),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleAddChain handles POST /api/registry/chains
func (h *Handler) HandleAddChain(w http.ResponseWriter, r *http.Request) {
	var req AddChainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.AddChain(auth.PrincipalFromContext(r.Context()), req.ChainID, req.Name); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"data": map[string]interface{}{
			"chain_id": req.ChainID,
			"name":     req.Name,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleSetChainEnabled handles PUT /api/registry/chains/{chainID}
func (h *Handler) HandleSetChainEnabled(w http.ResponseWriter, r *http.Request) {
	chainID, err := strconv.ParseInt(chi.URLParam(r, "chainID"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid chain ID", http.StatusBadRequest)
		return
	}

	var req SetChainEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.SetChainEnabled(auth.PrincipalFromContext(r.Context()), chainID, req.Enabled); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"chain_id": chainID,
			"enabled":  req.Enabled,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleListChains handles GET /api/registry/chains
func (h *Handler) HandleListChains(w http.ResponseWriter, r *http.Request) {
	chains, err := h.service.ListChains()
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"chains": chains,
			"count":  len(chains),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// writeError maps domain errors onto HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case domain.IsUnauthorized(err):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidHandle),
		errors.Is(err, domain.ErrInvalidWeight),
		errors.Is(err, domain.ErrInvalidAmount):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotRegistered),
		errors.Is(err, domain.ErrUnsupportedAsset),
		errors.Is(err, domain.ErrUnsupportedChain):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyRegistered),
		errors.Is(err, domain.ErrStrategyHasFunds),
		errors.Is(err, domain.ErrAssetPaused):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Registry operation failed")
	}
	http.Error(w, err.Error(), status)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
