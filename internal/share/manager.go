package share

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"idvault/internal/apperr"
	"idvault/internal/block"
	"idvault/internal/emailaddr"
	"idvault/internal/feed"
	"idvault/internal/sealer"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sharesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idvault_shares_created_total",
		Help: "Shares created, by duration in hours.",
	}, []string{"duration_hours"})
	sharesOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idvault_shares_opened_total",
		Help: "Share link opens, by result.",
	}, []string{"result"})
)

// Domain errors
var (
	ErrNotFound         = apperr.New(apperr.ErrNotFound, "share not found")
	ErrExpired          = apperr.New(apperr.ErrNotFound, "share link has expired")
	ErrInvalidDuration  = apperr.New(apperr.ErrValidation, "share duration must be 24, 48, 72 or 168 hours")
	ErrInvalidRecipient = apperr.New(apperr.ErrValidation, "recipient email must be a valid email address")
)

// Blocks reads an owner's blocks and the values behind their fields.
// *block.Manager satisfies it.
type Blocks interface {
	Get(ctx context.Context, ownerID, id uuid.UUID) (*block.Block, error)
	Resolve(ctx context.Context, ownerID uuid.UUID, b *block.Block) ([]block.ResolvedField, error)
}

// Manager handles business logic for shares.
type Manager struct {
	ds     *Datastore
	blocks Blocks
	sealer *sealer.Sealer
	feed   feed.Publisher
	origin string
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a share manager. Links are built as <origin>/verify/<token>.
func NewManager(ds *Datastore, blocks Blocks, s *sealer.Sealer, publisher feed.Publisher, origin string, logger *slog.Logger) *Manager {
	return &Manager{
		ds:     ds,
		blocks: blocks,
		sealer: s,
		feed:   publisher,
		origin: origin,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Share snapshots one of the owner's blocks and stores it behind a link that
// expires after req.DurationHours.
func (m *Manager) Share(ctx context.Context, ownerID uuid.UUID, req Request) (*Handle, error) {
	if !ValidDuration(req.DurationHours) {
		return nil, ErrInvalidDuration
	}
	if !emailaddr.Valid(req.RecipientEmail) {
		return nil, ErrInvalidRecipient
	}

	b, err := m.blocks.Get(ctx, ownerID, req.BlockID)
	if err != nil {
		return nil, err
	}
	resolved, err := m.blocks.Resolve(ctx, ownerID, b)
	if err != nil {
		return nil, err
	}

	snapshot := &Snapshot{
		BlockID:   b.ID,
		Name:      b.Name,
		CreatedAt: b.CreatedAt,
		Fields:    make([]SnapshotField, 0, len(resolved)),
	}
	for _, f := range resolved {
		snapshot.Fields = append(snapshot.Fields, SnapshotField{
			CredentialType: f.CredentialType,
			Issuer:         f.Issuer,
			FieldName:      f.FieldName,
			Value:          f.Value,
		})
	}

	sealed, err := m.sealer.SealJSON(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to seal share snapshot: %w", err)
	}

	now := m.now()
	s := &Share{
		ID:             uuid.New(),
		BlockID:        b.ID,
		OwnerID:        ownerID,
		RecipientEmail: req.RecipientEmail,
		Snapshot:       snapshot,
		SealedSnapshot: sealed,
		ExpiresAt:      now.Add(time.Duration(req.DurationHours) * time.Hour),
		CreatedAt:      now,
	}
	if err := m.ds.Create(ctx, s); err != nil {
		return nil, apperr.Provider(err, "failed to create share")
	}
	s.Token = EncodeToken(s.ID)

	sharesCreated.WithLabelValues(strconv.Itoa(req.DurationHours)).Inc()
	m.logger.InfoContext(ctx, "block shared",
		"share_id", s.ID, "block_id", b.ID, "owner_id", ownerID, "expires_at", s.ExpiresAt)
	m.feed.Publish(ownerID, feed.Event{Collection: feed.CollectionShares, Op: feed.OpCreated, ID: s.ID})

	return &Handle{ID: s.Token, URL: m.URL(s.Token), ExpiresAt: s.ExpiresAt}, nil
}

// URL returns the public link for token.
func (m *Manager) URL(token string) string {
	return m.origin + "/verify/" + token
}

// ListActive returns the owner's unexpired shares with their snapshots.
func (m *Manager) ListActive(ctx context.Context, ownerID uuid.UUID) ([]*Share, error) {
	shares, err := m.ds.ListActiveByOwner(ctx, ownerID, m.now())
	if err != nil {
		return nil, apperr.Provider(err, "failed to list shares")
	}
	for _, s := range shares {
		if err := m.reveal(s); err != nil {
			return nil, err
		}
	}
	return shares, nil
}

// Open resolves a share link. Anyone holding the token may open it until it
// expires. The first successful open stamps the access time and notifies the
// owner.
func (m *Manager) Open(ctx context.Context, token string) (*Share, error) {
	id, err := DecodeToken(token)
	if err != nil {
		sharesOpened.WithLabelValues("not_found").Inc()
		return nil, ErrNotFound
	}

	s, err := m.ds.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			sharesOpened.WithLabelValues("not_found").Inc()
			return nil, ErrNotFound
		}
		return nil, apperr.Provider(err, "failed to open share")
	}

	now := m.now()
	if s.Expired(now) {
		sharesOpened.WithLabelValues("expired").Inc()
		return nil, ErrExpired
	}

	firstAccess := !s.Accessed
	accessedAt, err := m.ds.MarkAccessed(ctx, s.ID, now)
	if err != nil {
		return nil, apperr.Provider(err, "failed to record share access")
	}
	s.Accessed = true
	s.AccessedAt = &accessedAt

	if err := m.reveal(s); err != nil {
		return nil, err
	}

	sharesOpened.WithLabelValues("opened").Inc()
	if firstAccess {
		m.logger.InfoContext(ctx, "share opened", "share_id", s.ID, "owner_id", s.OwnerID)
		m.feed.Publish(s.OwnerID, feed.Event{Collection: feed.CollectionShares, Op: feed.OpUpdated, ID: s.ID})
	}
	return s, nil
}

func (m *Manager) reveal(s *Share) error {
	var snapshot Snapshot
	if err := m.sealer.OpenJSON(s.SealedSnapshot, &snapshot); err != nil {
		return fmt.Errorf("failed to open share %s snapshot: %w", s.ID, err)
	}
	s.Snapshot = &snapshot
	return nil
}
