package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"idvault/internal/apperr"
	"idvault/internal/database"
	"idvault/internal/feed"
	"idvault/internal/sealer"

	"github.com/google/uuid"
)

// Domain errors
var (
	ErrNotFound         = apperr.New(apperr.ErrNotFound, "credential not found")
	ErrTypeRequired     = apperr.New(apperr.ErrValidation, "credential type is required")
	ErrIssuerRequired   = apperr.New(apperr.ErrValidation, "credential issuer is required")
	ErrNoMetadata       = apperr.New(apperr.ErrValidation, "credential must carry at least one field")
	ErrBlankFieldName   = apperr.New(apperr.ErrValidation, "credential field names cannot be blank")
	ErrMetadataUnsealed = errors.New("credential metadata is not sealed")
)

// Manager handles business logic for a user's credential collection.
type Manager struct {
	ds     *Datastore
	sealer *sealer.Sealer
	feed   feed.Publisher
	logger *slog.Logger
}

// NewManager creates a new credential manager.
func NewManager(ds *Datastore, s *sealer.Sealer, publisher feed.Publisher, logger *slog.Logger) *Manager {
	return &Manager{ds: ds, sealer: s, feed: publisher, logger: logger}
}

// List returns the owner's credentials with metadata opened.
func (m *Manager) List(ctx context.Context, ownerID uuid.UUID) ([]*Credential, error) {
	creds, err := m.ds.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, apperr.Provider(err, "failed to list credentials")
	}
	for _, c := range creds {
		if err := m.Reveal(c); err != nil {
			return nil, err
		}
	}
	return creds, nil
}

// Get returns one of the owner's credentials. Credentials of other users are
// reported as not found.
func (m *Manager) Get(ctx context.Context, ownerID, id uuid.UUID) (*Credential, error) {
	c, err := m.ds.GetByID(ctx, ownerID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, apperr.Provider(err, "failed to get credential")
	}
	if err := m.Reveal(c); err != nil {
		return nil, err
	}
	return c, nil
}

// CreateUnverified stores a self-declared credential. It is never verified.
func (m *Manager) CreateUnverified(ctx context.Context, ownerID uuid.UUID, input CreateInput) (*Credential, error) {
	typ := strings.TrimSpace(input.Type)
	if typ == "" {
		return nil, ErrTypeRequired
	}
	issuer := strings.TrimSpace(input.Issuer)
	if issuer == "" {
		return nil, ErrIssuerRequired
	}
	if len(input.Metadata) == 0 {
		return nil, ErrNoMetadata
	}
	for field := range input.Metadata {
		if strings.TrimSpace(field) == "" {
			return nil, ErrBlankFieldName
		}
	}

	sealed, err := m.sealer.SealJSON(input.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to seal credential metadata: %w", err)
	}

	c := &Credential{
		OwnerID:        ownerID,
		Type:           typ,
		Issuer:         issuer,
		IssuedAt:       input.IssuedAt,
		Metadata:       input.Metadata,
		SealedMetadata: sealed,
		Verified:       false,
	}
	if err := m.ds.Insert(ctx, c); err != nil {
		return nil, apperr.Provider(err, "failed to create credential")
	}

	m.logger.InfoContext(ctx, "credential created", "credential_id", c.ID, "owner_id", ownerID, "verified", false)
	m.feed.Publish(ownerID, feed.Event{Collection: feed.CollectionCredentials, Op: feed.OpCreated, ID: c.ID})
	return c, nil
}

// Delete removes one of the owner's credentials. Blocks that still point at it
// stop resolving; shares already taken keep their snapshot. A claimed identity
// stays claimed.
func (m *Manager) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	n, err := m.ds.Delete(ctx, ownerID, id)
	if err != nil {
		return apperr.Provider(err, "failed to delete credential")
	}
	if n == 0 {
		return ErrNotFound
	}

	m.logger.InfoContext(ctx, "credential deleted", "credential_id", id, "owner_id", ownerID)
	m.feed.Publish(ownerID, feed.Event{Collection: feed.CollectionCredentials, Op: feed.OpDeleted, ID: id})
	return nil
}

// InsertVerified stores c through tx as a verified credential. The caller owns
// the transaction and publishes the change once it commits. c.SealedMetadata
// must already be set.
func (m *Manager) InsertVerified(ctx context.Context, tx database.DBTX, c *Credential) error {
	if len(c.SealedMetadata) == 0 {
		return ErrMetadataUnsealed
	}
	c.Verified = true
	return m.ds.WithTx(tx).Insert(ctx, c)
}

// Reveal opens c's sealed metadata into c.Metadata.
func (m *Manager) Reveal(c *Credential) error {
	var metadata map[string]string
	if err := m.sealer.OpenJSON(c.SealedMetadata, &metadata); err != nil {
		return fmt.Errorf("failed to open credential %s metadata: %w", c.ID, err)
	}
	c.Metadata = metadata
	return nil
}
