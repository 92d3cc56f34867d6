package stats

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"idvault/internal/apperr"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, sqlmock.Sqlmock, time.Time) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mgr := NewManager(NewDatastore(db), slog.New(slog.NewTextHandler(io.Discard, nil)))
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	mgr.now = func() time.Time { return now }
	return mgr, mock, now
}

func TestForUser(t *testing.T) {
	mgr, mock, now := newTestManager(t)
	owner := uuid.New()

	mock.ExpectQuery(`SELECT .+ FROM credentials WHERE owner_id = \$1\),.+verified\),.+FROM shares WHERE owner_id = \$1 AND expires_at > \$2\),.+FROM blocks WHERE owner_id = \$1\)`).
		WithArgs(owner, now).
		WillReturnRows(sqlmock.NewRows([]string{"total", "verified", "shares", "blocks"}).AddRow(5, 3, 1, 2))

	s, err := mgr.ForUser(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, &UserStats{TotalCredentials: 5, VerifiedCredentials: 3, ActiveShares: 1, Blocks: 2}, s)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestForUser_StoreError(t *testing.T) {
	mgr, mock, _ := newTestManager(t)

	mock.ExpectQuery(`SELECT`).WillReturnError(sql.ErrConnDone)

	_, err := mgr.ForUser(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperr.ErrProvider)
}
