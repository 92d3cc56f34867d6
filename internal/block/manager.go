package block

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"idvault/internal/apperr"
	"idvault/internal/credential"
	"idvault/internal/feed"

	"github.com/google/uuid"
	"github.com/nrednav/cuid2"
)

// Domain errors
var (
	ErrNotFound           = apperr.New(apperr.ErrNotFound, "block not found")
	ErrNameRequired       = apperr.New(apperr.ErrValidation, "block name is required")
	ErrNoFields           = apperr.New(apperr.ErrValidation, "a block must contain at least one field")
	ErrUnknownCredential  = apperr.New(apperr.ErrValidation, "block field references a credential you do not hold")
	ErrUnverifiedField    = apperr.New(apperr.ErrValidation, "block fields must come from verified credentials")
	ErrFieldNotInMetadata = apperr.New(apperr.ErrValidation, "credential does not carry the selected field")
)

// CredentialGetter looks up one of an owner's credentials with its metadata
// opened. *credential.Manager satisfies it.
type CredentialGetter interface {
	Get(ctx context.Context, ownerID, id uuid.UUID) (*credential.Credential, error)
}

// Manager handles business logic for blocks.
type Manager struct {
	ds          *Datastore
	credentials CredentialGetter
	feed        feed.Publisher
	logger      *slog.Logger
}

// NewManager creates a new block manager.
func NewManager(ds *Datastore, credentials CredentialGetter, publisher feed.Publisher, logger *slog.Logger) *Manager {
	return &Manager{ds: ds, credentials: credentials, feed: publisher, logger: logger}
}

// Save stores a new block for ownerID. Every field must point at a verified
// credential of the owner that carries the field; otherwise nothing is stored.
func (m *Manager) Save(ctx context.Context, ownerID uuid.UUID, name string, fields []Field) (*Block, error) {
	b := &Block{OwnerID: ownerID, Name: strings.TrimSpace(name), Fields: fields}
	if err := m.validate(ctx, b); err != nil {
		return nil, err
	}

	if err := m.ds.Create(ctx, b); err != nil {
		return nil, apperr.Provider(err, "failed to save block")
	}

	m.logger.InfoContext(ctx, "block saved", "block_id", b.ID, "owner_id", ownerID, "fields", len(b.Fields))
	m.feed.Publish(ownerID, feed.Event{Collection: feed.CollectionBlocks, Op: feed.OpCreated, ID: b.ID})
	return b, nil
}

// Update renames a block and replaces its fields, with the same checks as Save.
// Shares already taken from the block keep their snapshot.
func (m *Manager) Update(ctx context.Context, ownerID, id uuid.UUID, name string, fields []Field) (*Block, error) {
	b := &Block{ID: id, OwnerID: ownerID, Name: strings.TrimSpace(name), Fields: fields}
	if err := m.validate(ctx, b); err != nil {
		return nil, err
	}

	if err := m.ds.Update(ctx, b); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, apperr.Provider(err, "failed to update block")
	}

	m.logger.InfoContext(ctx, "block updated", "block_id", b.ID, "owner_id", ownerID)
	m.feed.Publish(ownerID, feed.Event{Collection: feed.CollectionBlocks, Op: feed.OpUpdated, ID: b.ID})
	return b, nil
}

// List returns the owner's blocks.
func (m *Manager) List(ctx context.Context, ownerID uuid.UUID) ([]*Block, error) {
	blocks, err := m.ds.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, apperr.Provider(err, "failed to list blocks")
	}
	return blocks, nil
}

// Get returns one of the owner's blocks.
func (m *Manager) Get(ctx context.Context, ownerID, id uuid.UUID) (*Block, error) {
	b, err := m.ds.GetByID(ctx, ownerID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, apperr.Provider(err, "failed to get block")
	}
	return b, nil
}

// Resolve reads the current value behind each of b's fields. The owner's
// credentials are checked again, so a field whose credential has since gone
// away fails with ErrUnknownCredential.
func (m *Manager) Resolve(ctx context.Context, ownerID uuid.UUID, b *Block) ([]ResolvedField, error) {
	creds := make(map[uuid.UUID]*credential.Credential)
	resolved := make([]ResolvedField, 0, len(b.Fields))

	for _, f := range b.Fields {
		c, err := m.credential(ctx, ownerID, f, creds)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, ResolvedField{
			FieldID:        f.ID,
			CredentialID:   c.ID,
			CredentialType: c.Type,
			Issuer:         c.Issuer,
			FieldName:      f.FieldName,
			Value:          c.Metadata[f.FieldName],
		})
	}
	return resolved, nil
}

func (m *Manager) validate(ctx context.Context, b *Block) error {
	if b.Name == "" {
		return ErrNameRequired
	}
	if len(b.Fields) == 0 {
		return ErrNoFields
	}

	creds := make(map[uuid.UUID]*credential.Credential)
	for i := range b.Fields {
		if b.Fields[i].ID == "" {
			b.Fields[i].ID = cuid2.Generate()
		}
		if _, err := m.credential(ctx, b.OwnerID, b.Fields[i], creds); err != nil {
			return err
		}
	}
	return nil
}

// credential fetches f's credential through seen and checks f against it.
func (m *Manager) credential(ctx context.Context, ownerID uuid.UUID, f Field, seen map[uuid.UUID]*credential.Credential) (*credential.Credential, error) {
	c, ok := seen[f.CredentialID]
	if !ok {
		var err error
		c, err = m.credentials.Get(ctx, ownerID, f.CredentialID)
		if err != nil {
			if errors.Is(err, credential.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrUnknownCredential, f.CredentialID)
			}
			return nil, err
		}
		seen[f.CredentialID] = c
	}

	if !c.Verified {
		return nil, fmt.Errorf("%w: %s", ErrUnverifiedField, f.CredentialID)
	}
	if !c.HasField(f.FieldName) {
		return nil, fmt.Errorf("%w: %q", ErrFieldNotInMetadata, f.FieldName)
	}
	return c, nil
}
