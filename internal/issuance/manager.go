package issuance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"idvault/internal/apperr"
	"idvault/internal/auth"
	"idvault/internal/database"
	"idvault/internal/emailaddr"
	"idvault/internal/identitytype"
	"idvault/internal/sealer"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var identitiesIssued = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "idvault_identities_issued_total",
	Help: "Identities issued, by identity type.",
}, []string{"type"})

// Domain errors
var (
	ErrNotFound         = apperr.New(apperr.ErrNotFound, "issued identity not found")
	ErrInvalidRecipient = apperr.New(apperr.ErrValidation, "recipient email must be a valid email address")
	ErrNoIssuerEmail    = apperr.New(apperr.ErrPermissionDenied, "issuer account has no email address")
	ErrNotRecipient     = apperr.New(apperr.ErrPermissionDenied, "identity was not issued to you")
	ErrAlreadyClaimed   = apperr.New(apperr.ErrNotFound, "identity has already been claimed")
)

// Manager handles business logic for the issuance ledger.
type Manager struct {
	ds       *Datastore
	registry *identitytype.Registry
	sealer   *sealer.Sealer
	logger   *slog.Logger
	now      func() time.Time
}

// NewManager creates a new issuance manager.
func NewManager(ds *Datastore, registry *identitytype.Registry, s *sealer.Sealer, logger *slog.Logger) *Manager {
	return &Manager{
		ds:       ds,
		registry: registry,
		sealer:   s,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Issue appends a pending identity for input.RecipientEmail, valid for one
// year. Role checks are the caller's job. Identical requests are not
// deduplicated: every call appends a new record.
func (m *Manager) Issue(ctx context.Context, issuer *auth.Principal, input IssueInput) (*IssuedIdentity, error) {
	if issuer == nil || issuer.Email == "" {
		return nil, ErrNoIssuerEmail
	}
	if err := m.registry.ValidateMetadata(input.Type, input.Metadata); err != nil {
		return nil, err
	}
	if !emailaddr.Valid(input.RecipientEmail) {
		return nil, ErrInvalidRecipient
	}

	sealed, err := m.sealer.SealJSON(input.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to seal identity metadata: %w", err)
	}

	now := m.now()
	identity := &IssuedIdentity{
		ID:             uuid.New(),
		Type:           input.Type,
		RecipientEmail: input.RecipientEmail,
		IssuerEmail:    issuer.Email,
		Metadata:       input.Metadata,
		SealedMetadata: sealed,
		Status:         StatusPending,
		IssuedAt:       now,
		ExpiresAt:      now.AddDate(1, 0, 0),
	}

	if err := m.ds.Create(ctx, identity); err != nil {
		return nil, apperr.Provider(err, "failed to issue identity")
	}

	identitiesIssued.WithLabelValues(identity.Type).Inc()
	m.logger.InfoContext(ctx, "identity issued",
		"identity_id", identity.ID, "type", identity.Type, "issuer_id", issuer.UserID)
	return identity, nil
}

// ListIssuedBy returns the identities the issuer minted, newest first,
// optionally filtered by a substring of recipient email or type.
func (m *Manager) ListIssuedBy(ctx context.Context, issuer *auth.Principal, search string) ([]*IssuedIdentity, error) {
	if issuer == nil || issuer.Email == "" {
		return nil, ErrNoIssuerEmail
	}
	identities, err := m.ds.ListByIssuer(ctx, issuer.Email, search)
	if err != nil {
		return nil, apperr.Provider(err, "failed to list issued identities")
	}
	return m.revealAll(identities)
}

// ListPendingFor returns the pending identities addressed to email.
func (m *Manager) ListPendingFor(ctx context.Context, email string) ([]*IssuedIdentity, error) {
	if email == "" {
		return nil, nil
	}
	identities, err := m.ds.ListPendingByRecipient(ctx, email)
	if err != nil {
		return nil, apperr.Provider(err, "failed to list pending identities")
	}
	return m.revealAll(identities)
}

// Get returns an issued identity by ID.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*IssuedIdentity, error) {
	identity, err := m.ds.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, apperr.Provider(err, "failed to get issued identity")
	}
	if err := m.Reveal(identity); err != nil {
		return nil, err
	}
	return identity, nil
}

// MarkClaimed moves a pending identity addressed to recipientEmail to claimed
// through tx. When nothing was updated the identity is re-read in the same
// transaction to tell ErrNotFound, ErrNotRecipient and ErrAlreadyClaimed apart.
func (m *Manager) MarkClaimed(ctx context.Context, tx database.DBTX, id uuid.UUID, recipientEmail string, claimedBy uuid.UUID) (*IssuedIdentity, error) {
	ds := m.ds.WithTx(tx)

	identity, err := ds.MarkClaimed(ctx, id, recipientEmail, claimedBy, m.now())
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Provider(err, "failed to claim identity")
	}

	current, err := ds.GetByID(ctx, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		return nil, apperr.Provider(err, "failed to claim identity")
	case current.RecipientEmail != recipientEmail:
		return nil, ErrNotRecipient
	default:
		return nil, ErrAlreadyClaimed
	}
}

// Reveal opens the identity's sealed metadata.
func (m *Manager) Reveal(identity *IssuedIdentity) error {
	var metadata map[string]string
	if err := m.sealer.OpenJSON(identity.SealedMetadata, &metadata); err != nil {
		return fmt.Errorf("failed to open identity %s metadata: %w", identity.ID, err)
	}
	identity.Metadata = metadata
	return nil
}

func (m *Manager) revealAll(identities []*IssuedIdentity) ([]*IssuedIdentity, error) {
	for _, identity := range identities {
		if err := m.Reveal(identity); err != nil {
			return nil, err
		}
	}
	return identities, nil
}
