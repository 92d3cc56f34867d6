package handler

import (
	"log/slog"
	"net/http"

	"idvault/internal/auth"
	"idvault/internal/identitytype"
	"idvault/internal/issuance"
)

// IssuerHandler serves the issuer portal. Routes are gated to ISSUER and above.
type IssuerHandler struct {
	manager *issuance.Manager
	logger  *slog.Logger
}

// NewIssuerHandler creates a new issuer handler.
func NewIssuerHandler(manager *issuance.Manager, logger *slog.Logger) *IssuerHandler {
	return &IssuerHandler{manager: manager, logger: logger}
}

// Issue handles POST /api/v1/issuer/identities
func (h *IssuerHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req issuance.IssueInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	identity, err := h.manager.Issue(r.Context(), auth.PrincipalFrom(r.Context()), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, identity)
}

// List handles GET /api/v1/issuer/identities?q=
func (h *IssuerHandler) List(w http.ResponseWriter, r *http.Request) {
	identities, err := h.manager.ListIssuedBy(r.Context(), auth.PrincipalFrom(r.Context()), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if identities == nil {
		identities = []*issuance.IssuedIdentity{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"identities": identities,
		"count":      len(identities),
	})
}

// identityTypesHandler handles GET /api/v1/identity-types
func identityTypesHandler(registry *identitytype.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		types := registry.List()
		writeJSON(w, http.StatusOK, map[string]any{
			"types": types,
			"count": len(types),
		})
	}
}
