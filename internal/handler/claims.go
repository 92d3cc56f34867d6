package handler

import (
	"log/slog"
	"net/http"

	"idvault/internal/auth"
	"idvault/internal/claim"
	"idvault/internal/issuance"
)

// ClaimsHandler lists and claims identities issued to the caller's email.
type ClaimsHandler struct {
	manager *claim.Manager
	logger  *slog.Logger
}

// NewClaimsHandler creates a new claims handler.
func NewClaimsHandler(manager *claim.Manager, logger *slog.Logger) *ClaimsHandler {
	return &ClaimsHandler{manager: manager, logger: logger}
}

// List handles GET /api/v1/claims
func (h *ClaimsHandler) List(w http.ResponseWriter, r *http.Request) {
	pending, err := h.manager.ListPending(r.Context(), auth.PrincipalFrom(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if pending == nil {
		pending = []*issuance.IssuedIdentity{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"identities": pending,
		"count":      len(pending),
	})
}

// Claim handles POST /api/v1/claims/{id}
func (h *ClaimsHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	cred, err := h.manager.Claim(r.Context(), auth.PrincipalFrom(r.Context()), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, cred)
}
