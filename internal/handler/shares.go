package handler

import (
	"log/slog"
	"net/http"
	"time"

	"idvault/internal/auth"
	"idvault/internal/share"

	"github.com/go-chi/chi/v5"
)

// SharesHandler creates share links and serves them to whoever holds one.
type SharesHandler struct {
	manager *share.Manager
	logger  *slog.Logger
}

// NewSharesHandler creates a new shares handler.
func NewSharesHandler(manager *share.Manager, logger *slog.Logger) *SharesHandler {
	return &SharesHandler{manager: manager, logger: logger}
}

type shareResponse struct {
	*share.Share
	URL string `json:"url"`
}

// List handles GET /api/v1/shares
func (h *SharesHandler) List(w http.ResponseWriter, r *http.Request) {
	shares, err := h.manager.ListActive(r.Context(), auth.PrincipalFrom(r.Context()).UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response := make([]shareResponse, len(shares))
	for i, s := range shares {
		response[i] = shareResponse{Share: s, URL: h.manager.URL(s.Token)}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"shares": response,
		"count":  len(response),
	})
}

// Create handles POST /api/v1/shares
func (h *SharesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req share.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	handle, err := h.manager.Share(r.Context(), auth.PrincipalFrom(r.Context()).UserID, req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, handle)
}

// verifyResponse is what a link holder sees. Owner and recipient details are
// left out.
type verifyResponse struct {
	Snapshot  *share.Snapshot `json:"snapshot"`
	ExpiresAt time.Time       `json:"expires_at"`
	SharedAt  time.Time       `json:"shared_at"`
}

// Verify handles GET /verify/{token}. No authentication: the token is the
// capability.
func (h *SharesHandler) Verify(w http.ResponseWriter, r *http.Request) {
	s, err := h.manager.Open(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, verifyResponse{
		Snapshot:  s.Snapshot,
		ExpiresAt: s.ExpiresAt,
		SharedAt:  s.CreatedAt,
	})
}
