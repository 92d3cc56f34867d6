package user

import (
	"time"

	"idvault/internal/role"

	"github.com/google/uuid"
)

// Identity represents a wallet user synced from the identity provider.
// We only store what the workflows need: the verified email drives claims and
// the role drives authorization.
type Identity struct {
	ID            uuid.UUID  `json:"id"`
	AuthSubject   string     `json:"auth_subject"`
	Email         string     `json:"email"`
	EmailVerified bool       `json:"email_verified"`
	Name          string     `json:"name,omitempty"`
	Role          role.Level `json:"role"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
