package user

import (
	"context"
	"time"

	"idvault/internal/database"
	"idvault/internal/role"

	"github.com/google/uuid"
)

const selectColumns = `id, auth_subject, email, email_verified, COALESCE(name, ''), role, created_at, updated_at`

// Datastore handles database operations for users.
type Datastore struct {
	db database.DBTX
}

// NewDatastore creates a new user datastore.
func NewDatastore(db database.DBTX) *Datastore {
	return &Datastore{db: db}
}

// UpsertIdentity creates or updates a user from provider claims.
// The role column is never touched here: new rows get the column default
// (user) and existing rows keep whatever an admin assigned.
func (ds *Datastore) UpsertIdentity(ctx context.Context, identity *Identity) error {
	now := time.Now()

	query := `
		INSERT INTO users (id, auth_subject, email, email_verified, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (auth_subject)
		DO UPDATE SET email = $3, email_verified = $4, name = $5, updated_at = $7
		RETURNING id, role, created_at, updated_at`

	if identity.ID == uuid.Nil {
		identity.ID = uuid.New()
	}

	var level int
	err := ds.db.QueryRowContext(ctx, query,
		identity.ID, identity.AuthSubject, identity.Email, identity.EmailVerified,
		identity.Name, now, now,
	).Scan(&identity.ID, &level, &identity.CreatedAt, &identity.UpdatedAt)
	if err != nil {
		return err
	}
	identity.Role = role.Level(level)
	return nil
}

// GetByID retrieves a user by ID.
func (ds *Datastore) GetByID(ctx context.Context, id uuid.UUID) (*Identity, error) {
	query := `SELECT ` + selectColumns + ` FROM users WHERE id = $1`
	return scanIdentity(ds.db.QueryRowContext(ctx, query, id))
}

// GetBySubject retrieves a user by identity provider subject.
func (ds *Datastore) GetBySubject(ctx context.Context, subject string) (*Identity, error) {
	query := `SELECT ` + selectColumns + ` FROM users WHERE auth_subject = $1`
	return scanIdentity(ds.db.QueryRowContext(ctx, query, subject))
}

// List returns users ordered by creation time, newest first.
func (ds *Datastore) List(ctx context.Context, limit, offset int) ([]*Identity, error) {
	query := `SELECT ` + selectColumns + ` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := ds.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, identity)
	}
	return users, rows.Err()
}

// SetRole sets the role of a user.
func (ds *Datastore) SetRole(ctx context.Context, id uuid.UUID, level role.Level) (int64, error) {
	query := `UPDATE users SET role = $2, updated_at = $3 WHERE id = $1`
	result, err := ds.db.ExecContext(ctx, query, id, int(level), time.Now())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row scanner) (*Identity, error) {
	identity := &Identity{}
	var level int
	err := row.Scan(
		&identity.ID, &identity.AuthSubject, &identity.Email, &identity.EmailVerified,
		&identity.Name, &level, &identity.CreatedAt, &identity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	identity.Role = role.Level(level)
	return identity, nil
}
