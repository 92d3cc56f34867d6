package role

import (
	"context"

	"idvault/internal/auth"

	"github.com/google/uuid"
)

// Getter resolves a user's level. *Store satisfies it.
type Getter interface {
	GetRole(ctx context.Context, userID uuid.UUID) Level
}

// Policy answers role-gated authorization questions.
type Policy struct {
	roles Getter
}

// NewPolicy creates a policy backed by roles.
func NewPolicy(roles Getter) *Policy {
	return &Policy{roles: roles}
}

// IsAuthorized reports whether principal holds at least the required level.
// An unauthenticated (nil) principal is never authorized.
func (p *Policy) IsAuthorized(ctx context.Context, principal *auth.Principal, required Level) bool {
	if principal == nil {
		return false
	}
	return p.roles.GetRole(ctx, principal.UserID) >= required
}

// Level returns the principal's effective level, LevelUser when nil.
func (p *Policy) Level(ctx context.Context, principal *auth.Principal) Level {
	if principal == nil {
		return LevelUser
	}
	return p.roles.GetRole(ctx, principal.UserID)
}
