package handler

import (
	"log/slog"
	"net/http"

	"idvault/internal/auth"
	"idvault/internal/block"
)

// BlocksHandler serves the caller's blocks.
type BlocksHandler struct {
	manager *block.Manager
	logger  *slog.Logger
}

// NewBlocksHandler creates a new blocks handler.
func NewBlocksHandler(manager *block.Manager, logger *slog.Logger) *BlocksHandler {
	return &BlocksHandler{manager: manager, logger: logger}
}

// blockResponse is a block with the values behind its fields.
type blockResponse struct {
	*block.Block
	Resolved []block.ResolvedField `json:"resolved,omitempty"`
}

// List handles GET /api/v1/blocks
func (h *BlocksHandler) List(w http.ResponseWriter, r *http.Request) {
	blocks, err := h.manager.List(r.Context(), auth.PrincipalFrom(r.Context()).UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if blocks == nil {
		blocks = []*block.Block{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"blocks": blocks,
		"count":  len(blocks),
	})
}

// Get handles GET /api/v1/blocks/{id}
func (h *BlocksHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	owner := auth.PrincipalFrom(r.Context()).UserID

	b, err := h.manager.Get(r.Context(), owner, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resolved, err := h.manager.Resolve(r.Context(), owner, b)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, blockResponse{Block: b, Resolved: resolved})
}

// Create handles POST /api/v1/blocks
func (h *BlocksHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req block.Draft
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	b, err := h.manager.Save(r.Context(), auth.PrincipalFrom(r.Context()).UserID, req.Name, req.Fields)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// Update handles PUT /api/v1/blocks/{id}
func (h *BlocksHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req block.Draft
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	b, err := h.manager.Update(r.Context(), auth.PrincipalFrom(r.Context()).UserID, id, req.Name, req.Fields)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}
