package credential

import (
	"time"

	"github.com/google/uuid"
)

// Credential is an identity record held in a user's wallet. Verified
// credentials come from claiming an issued identity; unverified ones are
// self-declared.
type Credential struct {
	ID               uuid.UUID         `json:"id"`
	OwnerID          uuid.UUID         `json:"owner_id"`
	Type             string            `json:"type"`
	Issuer           string            `json:"issuer"`
	IssuedAt         *time.Time        `json:"issued_at,omitempty"`
	Metadata         map[string]string `json:"metadata"`
	SealedMetadata   []byte            `json:"-"`
	Verified         bool              `json:"verified"`
	SourceIdentityID *uuid.UUID        `json:"source_identity_id,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// HasField reports whether the credential's metadata carries name.
func (c *Credential) HasField(name string) bool {
	_, ok := c.Metadata[name]
	return ok
}

// CreateInput is the payload for a self-declared credential.
type CreateInput struct {
	Type     string            `json:"type"`
	Issuer   string            `json:"issuer"`
	IssuedAt *time.Time        `json:"issued_at,omitempty"`
	Metadata map[string]string `json:"metadata"`
}
