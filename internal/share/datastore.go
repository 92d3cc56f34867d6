package share

import (
	"context"
	"database/sql"
	"time"

	"idvault/internal/database"

	"github.com/google/uuid"
)

const selectColumns = `id, block_id, owner_id, recipient_email, snapshot, expires_at, accessed, accessed_at, created_at`

// Datastore handles database operations for shares.
type Datastore struct {
	db database.DBTX
}

// NewDatastore creates a new share datastore.
func NewDatastore(db database.DBTX) *Datastore {
	return &Datastore{db: db}
}

// Create inserts s with its sealed snapshot.
func (ds *Datastore) Create(ctx context.Context, s *Share) error {
	query := `
		INSERT INTO shares (id, block_id, owner_id, recipient_email, snapshot, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := ds.db.ExecContext(ctx, query,
		s.ID, s.BlockID, s.OwnerID, s.RecipientEmail, s.SealedSnapshot, s.ExpiresAt, s.CreatedAt,
	)
	return err
}

// GetByID retrieves a share by ID.
func (ds *Datastore) GetByID(ctx context.Context, id uuid.UUID) (*Share, error) {
	query := `SELECT ` + selectColumns + ` FROM shares WHERE id = $1`
	return scanShare(ds.db.QueryRowContext(ctx, query, id))
}

// ListActiveByOwner returns the owner's shares that have not expired at now,
// soonest to expire first.
func (ds *Datastore) ListActiveByOwner(ctx context.Context, ownerID uuid.UUID, now time.Time) ([]*Share, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM shares
		WHERE owner_id = $1 AND expires_at > $2
		ORDER BY expires_at ASC`

	rows, err := ds.db.QueryContext(ctx, query, ownerID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shares []*Share
	for rows.Next() {
		s, err := scanShare(rows)
		if err != nil {
			return nil, err
		}
		shares = append(shares, s)
	}
	return shares, rows.Err()
}

// MarkAccessed flags the share as accessed. The first access time is kept.
func (ds *Datastore) MarkAccessed(ctx context.Context, id uuid.UUID, at time.Time) (time.Time, error) {
	query := `
		UPDATE shares
		SET accessed = TRUE, accessed_at = COALESCE(accessed_at, $2)
		WHERE id = $1
		RETURNING accessed_at`

	var accessedAt time.Time
	err := ds.db.QueryRowContext(ctx, query, id, at).Scan(&accessedAt)
	return accessedAt, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanShare(row scanner) (*Share, error) {
	s := &Share{}
	var accessedAt sql.NullTime
	err := row.Scan(
		&s.ID, &s.BlockID, &s.OwnerID, &s.RecipientEmail, &s.SealedSnapshot,
		&s.ExpiresAt, &s.Accessed, &accessedAt, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if accessedAt.Valid {
		s.AccessedAt = &accessedAt.Time
	}
	s.Token = EncodeToken(s.ID)
	return s, nil
}
