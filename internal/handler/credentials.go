package handler

import (
	"log/slog"
	"net/http"

	"idvault/internal/auth"
	"idvault/internal/credential"
)

// CredentialsHandler serves the caller's credential collection.
type CredentialsHandler struct {
	manager *credential.Manager
	logger  *slog.Logger
}

// NewCredentialsHandler creates a new credentials handler.
func NewCredentialsHandler(manager *credential.Manager, logger *slog.Logger) *CredentialsHandler {
	return &CredentialsHandler{manager: manager, logger: logger}
}

// List handles GET /api/v1/credentials
func (h *CredentialsHandler) List(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFrom(r.Context())

	creds, err := h.manager.List(r.Context(), p.UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if creds == nil {
		creds = []*credential.Credential{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"credentials": creds,
		"count":       len(creds),
	})
}

// Get handles GET /api/v1/credentials/{id}
func (h *CredentialsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	c, err := h.manager.Get(r.Context(), auth.PrincipalFrom(r.Context()).UserID, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Create handles POST /api/v1/credentials
//
// Records created here are self-declared and never verified.
func (h *CredentialsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req credential.CreateInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	c, err := h.manager.CreateUnverified(r.Context(), auth.PrincipalFrom(r.Context()).UserID, req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// Delete handles DELETE /api/v1/credentials/{id}
func (h *CredentialsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.manager.Delete(r.Context(), auth.PrincipalFrom(r.Context()).UserID, id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
