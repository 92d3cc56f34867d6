// Package stats summarises a user's wallet.
package stats

import (
	"context"
	"log/slog"
	"time"

	"idvault/internal/apperr"

	"github.com/google/uuid"
)

// UserStats is the wallet summary shown on a user's dashboard.
type UserStats struct {
	TotalCredentials    int `json:"total_credentials"`
	VerifiedCredentials int `json:"verified_credentials"`
	ActiveShares        int `json:"active_shares"`
	Blocks              int `json:"blocks"`
}

// Manager serves wallet summaries.
type Manager struct {
	ds     *Datastore
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a new stats manager.
func NewManager(ds *Datastore, logger *slog.Logger) *Manager {
	return &Manager{ds: ds, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// ForUser returns the summary of userID's wallet. Expired shares are not
// counted as active.
func (m *Manager) ForUser(ctx context.Context, userID uuid.UUID) (*UserStats, error) {
	s, err := m.ds.ForOwner(ctx, userID, m.now())
	if err != nil {
		return nil, apperr.Provider(err, "failed to load wallet statistics")
	}
	return s, nil
}
