// Package handlers provides HTTP handlers for vault deposit, withdrawal and
// bridge operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/royaltyfi/vaultd/internal/auth"
	"github.com/royaltyfi/vaultd/internal/domain"
	"github.com/royaltyfi/vaultd/internal/modules/vault"
)

// Handler handles vault HTTP requests
type Handler struct {
	service *vault.Service
	log     zerolog.Logger
}

// NewHandler creates a new vault handler
func NewHandler(service *vault.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "vault").Logger(),
	}
}

// DepositRequest represents a deposit into the pool
type DepositRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

// WithdrawRequest represents a withdrawal from the pool
type WithdrawRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

// BridgeInRequest represents funds arriving over the bridge
type BridgeInRequest struct {
	Asset      string `json:"asset"`
	Amount     string `json:"amount"`
	SrcChainID int64  `json:"src_chain_id"`
	TxRef      string `json:"tx_ref"`
}

// BridgeOutRequest represents funds leaving over the bridge
type BridgeOutRequest struct {
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	DestChainID int64  `json:"dest_chain_id"`
	DestAddress string `json:"dest_address"`
}

func parseAmount(raw string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// HandleDeposit handles POST /api/vault/deposit
func (h *Handler) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	amount, ok := parseAmount(req.Amount)
	if !ok {
		http.Error(w, "Invalid amount", http.StatusBadRequest)
		return
	}

	owner := auth.PrincipalFromContext(r.Context())
	if owner == "" {
		http.Error(w, "Principal header is required", http.StatusUnauthorized)
		return
	}

	shares, err := h.service.Deposit(owner, req.Asset, amount)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"data": map[string]interface{}{
			"owner":  owner,
			"asset":  req.Asset,
			"amount": amount,
			"shares": shares,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleWithdraw handles POST /api/vault/withdraw
func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	amount, ok := parseAmount(req.Amount)
	if !ok {
		http.Error(w, "Invalid amount", http.StatusBadRequest)
		return
	}

	owner := auth.PrincipalFromContext(r.Context())
	if owner == "" {
		http.Error(w, "Principal header is required", http.StatusUnauthorized)
		return
	}

	burned, err := h.service.Withdraw(owner, req.Asset, amount)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"owner":         owner,
			"asset":         req.Asset,
			"amount":        amount,
			"shares_burned": burned,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleBridgeIn handles POST /api/vault/bridge/receive
func (h *Handler) HandleBridgeIn(w http.ResponseWriter, r *http.Request) {
	var req BridgeInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	amount, ok := parseAmount(req.Amount)
	if !ok {
		http.Error(w, "Invalid amount", http.StatusBadRequest)
		return
	}

	caller := auth.PrincipalFromContext(r.Context())
	if err := h.service.ReceiveFromBridge(caller, req.Asset, amount, req.SrcChainID, req.TxRef); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"asset":        req.Asset,
			"amount":       amount,
			"src_chain_id": req.SrcChainID,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleBridgeOut handles POST /api/vault/bridge/send
func (h *Handler) HandleBridgeOut(w http.ResponseWriter, r *http.Request) {
	var req BridgeOutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	amount, ok := parseAmount(req.Amount)
	if !ok {
		http.Error(w, "Invalid amount", http.StatusBadRequest)
		return
	}

	caller := auth.PrincipalFromContext(r.Context())
	if err := h.service.SendToChain(r.Context(), caller, req.Asset, amount, req.DestChainID, req.DestAddress); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"asset":         req.Asset,
			"amount":        amount,
			"dest_chain_id": req.DestChainID,
			"dest_address":  req.DestAddress,
		},
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
	case errors.Is(err, domain.ErrUnsupportedAsset),
		errors.Is(err, domain.ErrUnsupportedChain):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrAssetPaused),
		errors.Is(err, domain.ErrInsufficientBalance):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Vault operation failed")
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
