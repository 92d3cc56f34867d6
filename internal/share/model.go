package share

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Durations lists the accepted share lifetimes in hours.
var Durations = []int{24, 48, 72, 168}

// ValidDuration reports whether hours is one of Durations.
func ValidDuration(hours int) bool {
	return slices.Contains(Durations, hours)
}

// Snapshot is the point-in-time copy of a block taken when it is shared.
type Snapshot struct {
	BlockID   uuid.UUID       `json:"block_id"`
	Name      string          `json:"name"`
	CreatedAt time.Time       `json:"created_at"`
	Fields    []SnapshotField `json:"fields"`
}

// SnapshotField is one resolved block field.
type SnapshotField struct {
	CredentialType string `json:"credential_type"`
	Issuer         string `json:"issuer"`
	FieldName      string `json:"field_name"`
	Value          string `json:"value"`
}

// Share is an expiring link to a block snapshot. It is never modified after
// creation except for the access stamp.
type Share struct {
	ID             uuid.UUID  `json:"id"`
	Token          string     `json:"token"`
	BlockID        uuid.UUID  `json:"block_id"`
	OwnerID        uuid.UUID  `json:"owner_id"`
	RecipientEmail string     `json:"recipient_email"`
	Snapshot       *Snapshot  `json:"snapshot,omitempty"`
	SealedSnapshot []byte     `json:"-"`
	ExpiresAt      time.Time  `json:"expires_at"`
	Accessed       bool       `json:"accessed"`
	AccessedAt     *time.Time `json:"accessed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Expired reports whether the share is no longer usable at now.
func (s *Share) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Handle is what the owner hands out: the token and the link built from it.
type Handle struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Request is the owner's request to share a block.
type Request struct {
	BlockID        uuid.UUID `json:"block_id"`
	RecipientEmail string    `json:"recipient_email"`
	DurationHours  int       `json:"duration_hours"`
}
