package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"idvault/internal/auth"
	"idvault/internal/role"
	"idvault/internal/user"
)

// AdminUsersHandler handles admin operations on users.
type AdminUsersHandler struct {
	manager *user.Manager
	logger  *slog.Logger
}

// NewAdminUsersHandler creates a new admin users handler.
func NewAdminUsersHandler(manager *user.Manager, logger *slog.Logger) *AdminUsersHandler {
	return &AdminUsersHandler{manager: manager, logger: logger}
}

// userResponse is the JSON response for a user.
type userResponse struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	EmailVerified bool       `json:"email_verified"`
	Name          string     `json:"name,omitempty"`
	Role          role.Level `json:"role"`
	CreatedAt     string     `json:"created_at"`
	UpdatedAt     string     `json:"updated_at"`
}

func toUserResponse(u *user.Identity) userResponse {
	return userResponse{
		ID:            u.ID.String(),
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		Name:          u.Name,
		Role:          u.Role,
		CreatedAt:     u.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		UpdatedAt:     u.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// List handles GET /api/v1/admin/users
func (h *AdminUsersHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	users, err := h.manager.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response := make([]userResponse, len(users))
	for i, u := range users {
		response[i] = toUserResponse(u)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": response,
		"count": len(response),
	})
}

// Get handles GET /api/v1/admin/users/{id}
func (h *AdminUsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	u, err := h.manager.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// setRoleRequest is the JSON request for changing a user's role.
type setRoleRequest struct {
	Role role.Level `json:"role"`
}

// SetRole handles PUT /api/v1/admin/users/{id}/role
func (h *AdminUsersHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req setRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	actor := auth.PrincipalFrom(r.Context()).UserID
	if err := h.manager.SetRole(r.Context(), actor, id, req.Role); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	u, err := h.manager.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}
