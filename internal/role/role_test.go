package role

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"idvault/internal/auth"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const roleQuery = `SELECT role FROM users WHERE id = \$1`

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStore(db, logger, 16, time.Minute), mock
}

func TestStore_GetRole_Stored(t *testing.T) {
	store, mock := newTestStore(t)
	id := uuid.New()

	mock.ExpectQuery(roleQuery).WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow(int64(2)))

	assert.Equal(t, LevelIssuer, store.GetRole(context.Background(), id))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetRole_MissingRecordIsUser(t *testing.T) {
	store, mock := newTestStore(t)
	id := uuid.New()

	mock.ExpectQuery(roleQuery).WithArgs(id).WillReturnError(sql.ErrNoRows)

	assert.Equal(t, LevelUser, store.GetRole(context.Background(), id))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetRole_ErrorIsUserAndNotCached(t *testing.T) {
	store, mock := newTestStore(t)
	id := uuid.New()

	mock.ExpectQuery(roleQuery).WithArgs(id).WillReturnError(sql.ErrConnDone)
	mock.ExpectQuery(roleQuery).WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow(int64(3)))

	assert.Equal(t, LevelUser, store.GetRole(context.Background(), id))
	assert.Equal(t, LevelAdmin, store.GetRole(context.Background(), id))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetRole_OutOfRangeIsUser(t *testing.T) {
	store, mock := newTestStore(t)
	id := uuid.New()

	mock.ExpectQuery(roleQuery).WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow(int64(0)))

	assert.Equal(t, LevelUser, store.GetRole(context.Background(), id))
}

func TestStore_GetRole_CachedUntilInvalidated(t *testing.T) {
	store, mock := newTestStore(t)
	id := uuid.New()

	mock.ExpectQuery(roleQuery).WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow(int64(1)))
	mock.ExpectQuery(roleQuery).WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow(int64(3)))

	ctx := context.Background()
	assert.Equal(t, LevelUser, store.GetRole(ctx, id))
	// served from cache, no second query
	assert.Equal(t, LevelUser, store.GetRole(ctx, id))

	store.Invalidate(id)
	assert.Equal(t, LevelAdmin, store.GetRole(ctx, id))
	assert.NoError(t, mock.ExpectationsWereMet())
}

type fixedRoles map[uuid.UUID]Level

func (f fixedRoles) GetRole(_ context.Context, id uuid.UUID) Level {
	if l, ok := f[id]; ok {
		return l
	}
	return LevelUser
}

func TestPolicy_IsAuthorized(t *testing.T) {
	user, issuer, admin, unknown := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	policy := NewPolicy(fixedRoles{user: LevelUser, issuer: LevelIssuer, admin: LevelAdmin})
	ctx := context.Background()

	tests := []struct {
		name      string
		principal *auth.Principal
		required  Level
		want      bool
	}{
		{"nil principal", nil, LevelUser, false},
		{"user needs user", &auth.Principal{UserID: user}, LevelUser, true},
		{"user needs issuer", &auth.Principal{UserID: user}, LevelIssuer, false},
		{"issuer needs issuer", &auth.Principal{UserID: issuer}, LevelIssuer, true},
		{"issuer needs admin", &auth.Principal{UserID: issuer}, LevelAdmin, false},
		{"admin needs issuer", &auth.Principal{UserID: admin}, LevelIssuer, true},
		{"admin needs admin", &auth.Principal{UserID: admin}, LevelAdmin, true},
		{"no record needs user", &auth.Principal{UserID: unknown}, LevelUser, true},
		{"no record needs issuer", &auth.Principal{UserID: unknown}, LevelIssuer, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.IsAuthorized(ctx, tt.principal, tt.required))
		})
	}
}

func TestPolicy_Level(t *testing.T) {
	admin := uuid.New()
	policy := NewPolicy(fixedRoles{admin: LevelAdmin})

	assert.Equal(t, LevelUser, policy.Level(context.Background(), nil))
	assert.Equal(t, LevelAdmin, policy.Level(context.Background(), &auth.Principal{UserID: admin}))
}

func TestParseLevel(t *testing.T) {
	for _, name := range []string{"user", "Issuer", " ADMIN "} {
		_, err := ParseLevel(name)
		assert.NoError(t, err, name)
	}
	_, err := ParseLevel("superuser")
	assert.Error(t, err)
}

func TestLevel_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Role Level `json:"role"`
	}{LevelIssuer})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"issuer"}`, string(data))

	var decoded struct {
		Role Level `json:"role"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"role":"admin"}`), &decoded))
	assert.Equal(t, LevelAdmin, decoded.Role)

	assert.Error(t, json.Unmarshal([]byte(`{"role":"root"}`), &decoded))
	_, err = json.Marshal(struct{ Role Level }{Level(7)})
	assert.Error(t, err)
}
