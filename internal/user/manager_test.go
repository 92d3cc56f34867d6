package user

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"idvault/internal/apperr"
	"idvault/internal/jwtauth"
	"idvault/internal/role"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

var userColumns = []string{"id", "auth_subject", "email", "email_verified", "name", "role", "created_at", "updated_at"}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingCache struct {
	invalidated []uuid.UUID
}

func (r *recordingCache) Invalidate(id uuid.UUID) {
	r.invalidated = append(r.invalidated, id)
}

func newClaims(subject, email string, verified bool) *jwtauth.Claims {
	claims := &jwtauth.Claims{Email: email, EmailVerified: verified, Name: "Test User"}
	claims.Subject = subject
	return claims
}

func TestManager_UpsertFromClaims(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mgr := NewManager(NewDatastore(db), nil, testLogger())
	ctx := context.Background()

	now := time.Now()
	id := uuid.New()

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(sqlmock.AnyArg(), "oidc|123456", "test@example.com", true, "Test User", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "role", "created_at", "updated_at"}).AddRow(id.String(), int64(1), now, now))

	identity, err := mgr.UpsertFromClaims(ctx, newClaims("oidc|123456", "test@example.com", true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if identity.ID != id {
		t.Errorf("expected ID %s, got %s", id, identity.ID)
	}
	if identity.Email != "test@example.com" {
		t.Errorf("expected email 'test@example.com', got %q", identity.Email)
	}
	if identity.Role != role.LevelUser {
		t.Errorf("expected new user to have role user, got %v", identity.Role)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestManager_UpsertFromClaims_EmptyEmail(t *testing.T) {
	mgr := NewManager(NewDatastore(nil), nil, testLogger()) // nil db is fine, we won't hit it

	_, err := mgr.UpsertFromClaims(context.Background(), newClaims("oidc|123456", "  ", true))
	if !errors.Is(err, ErrInvalidEmail) {
		t.Errorf("expected ErrInvalidEmail, got %v", err)
	}
}

func TestManager_UpsertFromClaims_StoresEmailVerbatim(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mgr := NewManager(NewDatastore(db), nil, testLogger())
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(sqlmock.AnyArg(), "oidc|123456", " Alice@Example.com ", true, "Test User", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "role", "created_at", "updated_at"}).AddRow(uuid.NewString(), int64(1), now, now))

	identity, err := mgr.UpsertFromClaims(context.Background(), newClaims("oidc|123456", " Alice@Example.com ", true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.Email != " Alice@Example.com " {
		t.Errorf("expected the provider's email unchanged, got %q", identity.Email)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestManager_UpsertFromClaims_EmptySubject(t *testing.T) {
	mgr := NewManager(NewDatastore(nil), nil, testLogger())

	_, err := mgr.UpsertFromClaims(context.Background(), newClaims("", "test@example.com", true))
	if !errors.Is(err, ErrInvalidSubject) {
		t.Errorf("expected ErrInvalidSubject, got %v", err)
	}
}

func TestManager_Resolve_Existing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mgr := NewManager(NewDatastore(db), nil, testLogger())
	id := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM users WHERE auth_subject = \$1`).
		WithArgs("oidc|alice").
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(id.String(), "oidc|alice", "alice@example.com", true, "Test User", int64(2), now, now))

	identity, err := mgr.Resolve(context.Background(), newClaims("oidc|alice", "alice@example.com", true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.Role != role.LevelIssuer {
		t.Errorf("expected stored issuer role, got %v", identity.Role)
	}

	// unchanged profile, no upsert expected
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestManager_Resolve_NewUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mgr := NewManager(NewDatastore(db), nil, testLogger())
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM users WHERE auth_subject = \$1`).
		WithArgs("oidc|bob").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "role", "created_at", "updated_at"}).AddRow(uuid.NewString(), int64(1), now, now))

	identity, err := mgr.Resolve(context.Background(), newClaims("oidc|bob", "bob@example.com", false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.Email != "bob@example.com" {
		t.Errorf("expected email 'bob@example.com', got %q", identity.Email)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestManager_Resolve_EmailChanged(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mgr := NewManager(NewDatastore(db), nil, testLogger())
	id := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM users WHERE auth_subject = \$1`).
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(id.String(), "oidc|alice", "old@example.com", true, "Test User", int64(1), now, now))
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(sqlmock.AnyArg(), "oidc|alice", "new@example.com", true, "Test User", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "role", "created_at", "updated_at"}).AddRow(id.String(), int64(1), now, now))

	identity, err := mgr.Resolve(context.Background(), newClaims("oidc|alice", "new@example.com", true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.Email != "new@example.com" {
		t.Errorf("expected refreshed email, got %q", identity.Email)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestManager_GetByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mgr := NewManager(NewDatastore(db), nil, testLogger())

	id := uuid.New()
	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(userColumns))

	_, err = mgr.GetByID(context.Background(), id)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found kind, got %v", err)
	}
}

func TestManager_List_ClampsLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mgr := NewManager(NewDatastore(db), nil, testLogger())
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM users ORDER BY created_at DESC LIMIT \$1 OFFSET \$2`).
		WithArgs(MaxListLimit, 0).
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(uuid.NewString(), "oidc|a", "a@example.com", true, "", int64(1), now, now).
			AddRow(uuid.NewString(), "oidc|b", "b@example.com", false, "B", int64(3), now, now))

	users, err := mgr.List(context.Background(), 10_000, -5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
	if users[1].Role != role.LevelAdmin {
		t.Errorf("expected second user to be admin, got %v", users[1].Role)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestManager_SetRole(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	cache := &recordingCache{}
	mgr := NewManager(NewDatastore(db), cache, testLogger())
	admin, target := uuid.New(), uuid.New()

	mock.ExpectExec(`UPDATE users SET role = \$2`).
		WithArgs(target, 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := mgr.SetRole(context.Background(), admin, target, role.LevelIssuer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != target {
		t.Errorf("expected role cache invalidation for %s, got %v", target, cache.invalidated)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestManager_SetRole_Rejections(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mgr := NewManager(NewDatastore(db), &recordingCache{}, testLogger())
	admin, missing := uuid.New(), uuid.New()

	if err := mgr.SetRole(context.Background(), admin, admin, role.LevelUser); !errors.Is(err, ErrSelfRoleChange) {
		t.Errorf("expected ErrSelfRoleChange, got %v", err)
	}
	if err := mgr.SetRole(context.Background(), admin, missing, role.Level(9)); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("expected ErrInvalidRole, got %v", err)
	}

	mock.ExpectExec(`UPDATE users SET role = \$2`).
		WithArgs(missing, 3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := mgr.SetRole(context.Background(), admin, missing, role.LevelAdmin); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
