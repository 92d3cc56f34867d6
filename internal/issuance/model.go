package issuance

import (
	"time"

	"github.com/google/uuid"
)

// Status of an issued identity. The only transition is pending -> claimed.
type Status string

const (
	StatusPending Status = "pending"
	StatusClaimed Status = "claimed"
)

// IssuedIdentity is a claimable identity record minted by an issuer for a
// recipient email.
type IssuedIdentity struct {
	ID             uuid.UUID         `json:"id"`
	Type           string            `json:"type"`
	RecipientEmail string            `json:"recipient_email"`
	IssuerEmail    string            `json:"issuer_email"`
	Metadata       map[string]string `json:"metadata"`
	SealedMetadata []byte            `json:"-"`
	Status         Status            `json:"status"`
	IssuedAt       time.Time         `json:"issued_at"`
	ExpiresAt      time.Time         `json:"expires_at"`
	ClaimedAt      *time.Time        `json:"claimed_at,omitempty"`
	ClaimedBy      *uuid.UUID        `json:"claimed_by,omitempty"`
}

// IssueInput is the issuer's request to mint an identity.
type IssueInput struct {
	Type           string            `json:"type"`
	RecipientEmail string            `json:"recipient_email"`
	Metadata       map[string]string `json:"metadata"`
}
