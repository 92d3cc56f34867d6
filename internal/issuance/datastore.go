package issuance

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"idvault/internal/database"

	"github.com/google/uuid"
)

const selectColumns = `id, type, recipient_email, issuer_email, metadata, status, issued_at, expires_at, claimed_at, claimed_by`

// Datastore handles database operations for issued identities.
type Datastore struct {
	db database.DBTX
}

// NewDatastore creates a new issuance datastore.
func NewDatastore(db database.DBTX) *Datastore {
	return &Datastore{db: db}
}

// WithTx returns a datastore bound to tx.
func (ds *Datastore) WithTx(tx database.DBTX) *Datastore {
	return &Datastore{db: tx}
}

// Create appends a new issued identity.
func (ds *Datastore) Create(ctx context.Context, identity *IssuedIdentity) error {
	query := `
		INSERT INTO issued_identities (id, type, recipient_email, issuer_email, metadata, status, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := ds.db.ExecContext(ctx, query,
		identity.ID, identity.Type, identity.RecipientEmail, identity.IssuerEmail,
		identity.SealedMetadata, string(identity.Status), identity.IssuedAt, identity.ExpiresAt,
	)
	return err
}

// GetByID retrieves an issued identity by ID.
func (ds *Datastore) GetByID(ctx context.Context, id uuid.UUID) (*IssuedIdentity, error) {
	query := `SELECT ` + selectColumns + ` FROM issued_identities WHERE id = $1`
	return scanIdentity(ds.db.QueryRowContext(ctx, query, id))
}

// ListByIssuer returns identities minted by issuerEmail, newest first. A
// non-empty search keeps only rows whose recipient email or type contains it,
// case-insensitively.
func (ds *Datastore) ListByIssuer(ctx context.Context, issuerEmail, search string) ([]*IssuedIdentity, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM issued_identities
		WHERE issuer_email = $1
		  AND ($2 = '' OR recipient_email ILIKE '%' || $2 || '%' OR type ILIKE '%' || $2 || '%')
		ORDER BY issued_at DESC`

	return ds.list(ctx, query, issuerEmail, escapeLike(search))
}

// ListPendingByRecipient returns pending identities addressed to email, newest first.
func (ds *Datastore) ListPendingByRecipient(ctx context.Context, email string) ([]*IssuedIdentity, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM issued_identities
		WHERE recipient_email = $1 AND status = 'pending'
		ORDER BY issued_at DESC`

	return ds.list(ctx, query, email)
}

// MarkClaimed flips a pending identity addressed to recipientEmail to claimed
// and returns the updated row. The row lock taken by the update serializes
// concurrent claims; the loser sees sql.ErrNoRows.
func (ds *Datastore) MarkClaimed(ctx context.Context, id uuid.UUID, recipientEmail string, claimedBy uuid.UUID, at time.Time) (*IssuedIdentity, error) {
	query := `
		UPDATE issued_identities
		SET status = 'claimed', claimed_at = $3, claimed_by = $4
		WHERE id = $1 AND recipient_email = $2 AND status = 'pending'
		RETURNING ` + selectColumns

	return scanIdentity(ds.db.QueryRowContext(ctx, query, id, recipientEmail, at, claimedBy))
}

func (ds *Datastore) list(ctx context.Context, query string, args ...any) ([]*IssuedIdentity, error) {
	rows, err := ds.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var identities []*IssuedIdentity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		identities = append(identities, identity)
	}
	return identities, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row scanner) (*IssuedIdentity, error) {
	identity := &IssuedIdentity{}
	var (
		status    string
		claimedAt sql.NullTime
		claimedBy uuid.NullUUID
	)
	err := row.Scan(
		&identity.ID, &identity.Type, &identity.RecipientEmail, &identity.IssuerEmail,
		&identity.SealedMetadata, &status, &identity.IssuedAt, &identity.ExpiresAt,
		&claimedAt, &claimedBy,
	)
	if err != nil {
		return nil, err
	}
	identity.Status = Status(status)
	if claimedAt.Valid {
		identity.ClaimedAt = &claimedAt.Time
	}
	if claimedBy.Valid {
		identity.ClaimedBy = &claimedBy.UUID
	}
	return identity, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(strings.TrimSpace(s))
}
