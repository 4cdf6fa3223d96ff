package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/royaltyfi/vaultd/internal/auth"
	"github.com/royaltyfi/vaultd/internal/domain"
)

// AuthHandlers serves role management endpoints.
type AuthHandlers struct {
	gate *auth.Gate
	log  zerolog.Logger
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(gate *auth.Gate, log zerolog.Logger) *AuthHandlers {
	return &AuthHandlers{
		gate: gate,
		log:  log.With().Str("handler", "auth").Logger(),
	}
}

// GrantRequest represents a role grant
type GrantRequest struct {
	Principal string `json:"principal"`
	Role      string `json:"role"`
}

// HandleListRoles handles GET /api/auth/roles
func (h *AuthHandlers) HandleListRoles(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.gate.All()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"assignments": assignments,
			"count":       len(assignments),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleRolesOf handles GET /api/auth/roles/{principal}
func (h *AuthHandlers) HandleRolesOf(w http.ResponseWriter, r *http.Request) {
	principal := chi.URLParam(r, "principal")

	assignments, err := h.gate.RolesOf(principal)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"principal":   principal,
			"assignments": assignments,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGrant handles POST /api/auth/roles
func (h *AuthHandlers) HandleGrant(w http.ResponseWriter, r *http.Request) {
	var req GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if !domain.ValidRole(domain.Role(req.Role)) {
		http.Error(w, "Unknown role", http.StatusBadRequest)
		return
	}

	caller := auth.PrincipalFromContext(r.Context())
	if err := h.gate.Grant(caller, req.Principal, domain.Role(req.Role)); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"data": map[string]interface{}{
			"principal": req.Principal,
			"role":      req.Role,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleRevoke handles DELETE /api/auth/roles/{principal}/{role}
func (h *AuthHandlers) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	principal := chi.URLParam(r, "principal")
	role := chi.URLParam(r, "role")

	caller := auth.PrincipalFromContext(r.Context())
	if err := h.gate.Revoke(caller, principal, domain.Role(role)); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"principal": principal,
			"role":      role,
			"revoked":   true,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *AuthHandlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case domain.IsUnauthorized(err):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrLastAdmin):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Role operation failed")
	}
	http.Error(w, err.Error(), status)
}

func (h *AuthHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
