package block

import (
	"context"
	"encoding/json"
	"fmt"

	"idvault/internal/database"

	"github.com/google/uuid"
)

const selectColumns = `id, owner_id, name, fields, created_at, updated_at`

// Datastore handles database operations for blocks. Fields are kept as a JSONB
// array so a block reads back in one row.
type Datastore struct {
	db database.DBTX
}

// NewDatastore creates a new block datastore.
func NewDatastore(db database.DBTX) *Datastore {
	return &Datastore{db: db}
}

// Create inserts b, assigning its ID and timestamps.
func (ds *Datastore) Create(ctx context.Context, b *Block) error {
	fields, err := json.Marshal(b.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode block fields: %w", err)
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}

	query := `
		INSERT INTO blocks (id, owner_id, name, fields, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING created_at, updated_at`

	return ds.db.QueryRowContext(ctx, query, b.ID, b.OwnerID, b.Name, string(fields)).
		Scan(&b.CreatedAt, &b.UpdatedAt)
}

// Update replaces the name and fields of a block owned by b.OwnerID. It
// returns sql.ErrNoRows when no such block exists.
func (ds *Datastore) Update(ctx context.Context, b *Block) error {
	fields, err := json.Marshal(b.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode block fields: %w", err)
	}

	query := `
		UPDATE blocks
		SET name = $3, fields = $4, updated_at = NOW()
		WHERE id = $1 AND owner_id = $2
		RETURNING created_at, updated_at`

	return ds.db.QueryRowContext(ctx, query, b.ID, b.OwnerID, b.Name, string(fields)).
		Scan(&b.CreatedAt, &b.UpdatedAt)
}

// GetByID retrieves a block owned by ownerID.
func (ds *Datastore) GetByID(ctx context.Context, ownerID, id uuid.UUID) (*Block, error) {
	query := `SELECT ` + selectColumns + ` FROM blocks WHERE id = $1 AND owner_id = $2`
	return scanBlock(ds.db.QueryRowContext(ctx, query, id, ownerID))
}

// ListByOwner retrieves every block owned by ownerID, most recently changed first.
func (ds *Datastore) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*Block, error) {
	query := `SELECT ` + selectColumns + ` FROM blocks WHERE owner_id = $1 ORDER BY updated_at DESC`

	rows, err := ds.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []*Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBlock(row scanner) (*Block, error) {
	b := &Block{}
	var fields []byte
	if err := row.Scan(&b.ID, &b.OwnerID, &b.Name, &fields, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fields, &b.Fields); err != nil {
		return nil, fmt.Errorf("failed to decode block %s fields: %w", b.ID, err)
	}
	return b, nil
}
