package credential

import (
	"context"
	"database/sql"
	"time"

	"idvault/internal/database"

	"github.com/google/uuid"
)

const selectColumns = `id, owner_id, type, issuer, issued_at, metadata, verified, source_identity_id, created_at`

// Datastore handles database operations for credentials. Metadata is read and
// written in its sealed form.
type Datastore struct {
	db database.DBTX
}

// NewDatastore creates a new credential datastore.
func NewDatastore(db database.DBTX) *Datastore {
	return &Datastore{db: db}
}

// WithTx returns a datastore bound to tx.
func (ds *Datastore) WithTx(tx database.DBTX) *Datastore {
	return &Datastore{db: tx}
}

// Insert stores c. ID and CreatedAt are assigned when zero.
func (ds *Datastore) Insert(ctx context.Context, c *Credential) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}

	query := `
		INSERT INTO credentials (id, owner_id, type, issuer, issued_at, metadata, verified, source_identity_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING created_at`

	var source uuid.NullUUID
	if c.SourceIdentityID != nil {
		source = uuid.NullUUID{UUID: *c.SourceIdentityID, Valid: true}
	}

	return ds.db.QueryRowContext(ctx, query,
		c.ID, c.OwnerID, c.Type, c.Issuer, nullTime(c.IssuedAt), c.SealedMetadata, c.Verified, source,
	).Scan(&c.CreatedAt)
}

// GetByID retrieves a credential owned by ownerID.
func (ds *Datastore) GetByID(ctx context.Context, ownerID, id uuid.UUID) (*Credential, error) {
	query := `SELECT ` + selectColumns + ` FROM credentials WHERE id = $1 AND owner_id = $2`
	return scanCredential(ds.db.QueryRowContext(ctx, query, id, ownerID))
}

// ListByOwner retrieves every credential owned by ownerID, newest first.
func (ds *Datastore) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*Credential, error) {
	query := `SELECT ` + selectColumns + ` FROM credentials WHERE owner_id = $1 ORDER BY created_at DESC`

	rows, err := ds.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []*Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

// Delete removes a credential owned by ownerID and reports how many rows went.
func (ds *Datastore) Delete(ctx context.Context, ownerID, id uuid.UUID) (int64, error) {
	result, err := ds.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCredential(row scanner) (*Credential, error) {
	c := &Credential{}
	var (
		issuedAt sql.NullTime
		source   uuid.NullUUID
	)
	err := row.Scan(&c.ID, &c.OwnerID, &c.Type, &c.Issuer, &issuedAt, &c.SealedMetadata, &c.Verified, &source, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if issuedAt.Valid {
		c.IssuedAt = &issuedAt.Time
	}
	if source.Valid {
		c.SourceIdentityID = &source.UUID
	}
	return c, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
