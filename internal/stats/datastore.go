package stats

import (
	"context"
	"time"

	"idvault/internal/database"

	"github.com/google/uuid"
)

// Datastore runs the count queries behind a user's wallet summary.
type Datastore struct {
	db database.DBTX
}

// NewDatastore creates a new stats datastore.
func NewDatastore(db database.DBTX) *Datastore {
	return &Datastore{db: db}
}

// ForOwner counts ownerID's credentials, verified credentials, shares still
// open at now, and blocks in one round trip.
func (ds *Datastore) ForOwner(ctx context.Context, ownerID uuid.UUID, now time.Time) (*UserStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM credentials WHERE owner_id = $1),
			(SELECT COUNT(*) FROM credentials WHERE owner_id = $1 AND verified),
			(SELECT COUNT(*) FROM shares WHERE owner_id = $1 AND expires_at > $2),
			(SELECT COUNT(*) FROM blocks WHERE owner_id = $1)`

	s := &UserStats{}
	err := ds.db.QueryRowContext(ctx, query, ownerID, now).Scan(
		&s.TotalCredentials, &s.VerifiedCredentials, &s.ActiveShares, &s.Blocks,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}
