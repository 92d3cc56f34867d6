package user

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"

	"idvault/internal/apperr"
	"idvault/internal/jwtauth"
	"idvault/internal/role"

	"github.com/google/uuid"
)

// Domain errors
var (
	ErrNotFound       = apperr.New(apperr.ErrNotFound, "user not found")
	ErrInvalidEmail   = apperr.New(apperr.ErrValidation, "token carries no email address")
	ErrInvalidSubject = apperr.New(apperr.ErrValidation, "token carries no subject")
	ErrInvalidRole    = apperr.New(apperr.ErrValidation, "role must be one of user, issuer, admin")
	ErrSelfRoleChange = apperr.New(apperr.ErrPermissionDenied, "admins cannot change their own role")
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// RoleCache is told about role changes so stale levels are not served.
type RoleCache interface {
	Invalidate(userID uuid.UUID)
}

// Manager handles business logic for users.
type Manager struct {
	ds     *Datastore
	roles  RoleCache
	logger *slog.Logger
}

// NewManager creates a new user manager. roles may be nil.
func NewManager(ds *Datastore, roles RoleCache, logger *slog.Logger) *Manager {
	return &Manager{ds: ds, roles: roles, logger: logger}
}

// UpsertFromClaims creates or updates a user from verified JWT claims.
// First sign-in creates the record with the user role.
func (m *Manager) UpsertFromClaims(ctx context.Context, claims *jwtauth.Claims) (*Identity, error) {
	subject := claims.SubjectID()
	if subject == "" {
		return nil, ErrInvalidSubject
	}

	// Stored exactly as the provider sends it; recipient matching is exact.
	if strings.TrimSpace(claims.Email) == "" {
		return nil, ErrInvalidEmail
	}

	identity := &Identity{
		AuthSubject:   subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
	}

	if err := m.ds.UpsertIdentity(ctx, identity); err != nil {
		return nil, apperr.Provider(err, "failed to sync user")
	}
	return identity, nil
}

// Resolve returns the stored user for claims, creating or refreshing the
// record only when it is missing or its profile fields changed.
func (m *Manager) Resolve(ctx context.Context, claims *jwtauth.Claims) (*Identity, error) {
	identity, err := m.ds.GetBySubject(ctx, claims.SubjectID())
	switch {
	case errors.Is(err, sql.ErrNoRows):
		identity, err = m.UpsertFromClaims(ctx, claims)
		if err == nil {
			m.logger.InfoContext(ctx, "user registered", "user_id", identity.ID)
		}
		return identity, err
	case err != nil:
		return nil, apperr.Provider(err, "failed to load user")
	}

	if identity.Email != claims.Email ||
		identity.EmailVerified != claims.EmailVerified ||
		identity.Name != claims.Name {
		return m.UpsertFromClaims(ctx, claims)
	}
	return identity, nil
}

// GetByID retrieves a user by ID.
func (m *Manager) GetByID(ctx context.Context, id uuid.UUID) (*Identity, error) {
	identity, err := m.ds.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, apperr.Provider(err, "failed to get user")
	}
	return identity, nil
}

// List returns a page of users. limit is clamped to [1, MaxListLimit].
func (m *Manager) List(ctx context.Context, limit, offset int) ([]*Identity, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)
	offset = max(offset, 0)

	users, err := m.ds.List(ctx, limit, offset)
	if err != nil {
		return nil, apperr.Provider(err, "failed to list users")
	}
	return users, nil
}

// SetRole changes the role of target. An admin cannot change their own role.
func (m *Manager) SetRole(ctx context.Context, actor, target uuid.UUID, level role.Level) error {
	if !level.Valid() {
		return ErrInvalidRole
	}
	if actor == target {
		return ErrSelfRoleChange
	}

	rowsAffected, err := m.ds.SetRole(ctx, target, level)
	if err != nil {
		return apperr.Provider(err, "failed to set role")
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	if m.roles != nil {
		m.roles.Invalidate(target)
	}
	m.logger.InfoContext(ctx, "user role changed",
		"actor_id", actor, "user_id", target, "role", level.String())
	return nil
}
