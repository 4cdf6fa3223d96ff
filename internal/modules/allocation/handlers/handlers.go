// Package handlers provides HTTP handlers for allocation engine operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/royaltyfi/vaultd/internal/auth"
	"github.com/royaltyfi/vaultd/internal/domain"
	"github.com/royaltyfi/vaultd/internal/modules/allocation"
)

// Handler handles allocation HTTP requests
type Handler struct {
	service *allocation.Service
	log     zerolog.Logger
}

// NewHandler creates a new allocation handler
func NewHandler(service *allocation.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "allocation").Logger(),
	}
}

// DeployRequest represents a request to deploy on-hand funds
type DeployRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
	Mode   string `json:"mode"` // "equal" or "weighted", defaults to weighted
}

// HandleDeploy handles POST /api/allocation/deploy
func (h *Handler) HandleDeploy(w http.ResponseWriter, r *http.Request) {
	var req DeployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		http.Error(w, "Invalid amount", http.StatusBadRequest)
		return
	}

	mode := req.Mode
	if mode == "" {
		mode = allocation.ModeWeighted
	}

	report, err := h.service.Deploy(r.Context(), auth.PrincipalFromContext(r.Context()), req.Asset, amount, mode)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeReport(w, report)
}

// HandleHarvest handles POST /api/allocation/harvest/{asset}
func (h *Handler) HandleHarvest(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")

	report, err := h.service.Harvest(r.Context(), auth.PrincipalFromContext(r.Context()), asset)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeReport(w, report)
}

// HandleEmergencyExit handles POST /api/allocation/emergency-exit/{asset}
func (h *Handler) HandleEmergencyExit(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")

	report, err := h.service.EmergencyExit(r.Context(), auth.PrincipalFromContext(r.Context()), asset)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeReport(w, report)
}

func (h *Handler) writeReport(w http.ResponseWriter, report *allocation.Report) {
	status := http.StatusOK
	if !report.Complete {
		status = http.StatusMultiStatus
	}
	h.writeJSON(w, status, map[string]interface{}{
		"data": report,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case domain.IsUnauthorized(err):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidAmount):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnsupportedAsset):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrAssetPaused),
		errors.Is(err, domain.ErrInsufficientBalance):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Allocation operation failed")
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
