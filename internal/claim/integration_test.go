package claim_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"idvault/internal/auth"
	"idvault/internal/block"
	"idvault/internal/claim"
	"idvault/internal/credential"
	"idvault/internal/database"
	"idvault/internal/feed"
	"idvault/internal/identitytype"
	"idvault/internal/issuance"
	"idvault/internal/sealer"
	"idvault/internal/share"
	"idvault/internal/stats"
	"idvault/internal/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

type wallet struct {
	db          *database.DB
	migrations  string
	logger      *slog.Logger
	users       *user.Datastore
	ledger      *issuance.Manager
	credentials *credential.Manager
	claims      *claim.Manager
	blocks      *block.Manager
	shares      *share.Manager
	stats       *stats.Manager
}

// setupWallet starts PostgreSQL in a container and wires the managers against it.
func setupWallet(t *testing.T) *wallet {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION is not set")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("idvault_test"),
		postgres.WithUsername("idvault"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.Open(ctx, dsn, database.Options{MaxOpenConns: 16})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	migrations, err := filepath.Abs("../../migrations")
	require.NoError(t, err)
	require.NoError(t, db.MigrateUp(ctx, migrations, logger))

	s, err := sealer.New(bytes.Repeat([]byte{3}, 32))
	require.NoError(t, err)

	hub := feed.NewHub(16, logger)
	ledger := issuance.NewManager(issuance.NewDatastore(db.DB), identitytype.NewRegistry(), s, logger)
	credentials := credential.NewManager(credential.NewDatastore(db.DB), s, hub, logger)
	blocks := block.NewManager(block.NewDatastore(db.DB), credentials, hub, logger)

	return &wallet{
		db:          db,
		migrations:  migrations,
		logger:      logger,
		users:       user.NewDatastore(db.DB),
		ledger:      ledger,
		credentials: credentials,
		claims:      claim.NewManager(db.DB, ledger, credentials, hub, logger),
		blocks:      blocks,
		shares:      share.NewManager(share.NewDatastore(db.DB), blocks, s, hub, "https://wallet.example", logger),
		stats:       stats.NewManager(stats.NewDatastore(db.DB), logger),
	}
}

func (w *wallet) signUp(t *testing.T, subject, email string) *auth.Principal {
	t.Helper()
	u := &user.Identity{AuthSubject: subject, Email: email, EmailVerified: true}
	require.NoError(t, w.users.UpsertIdentity(context.Background(), u))
	return &auth.Principal{UserID: u.ID, Subject: subject, Email: email, EmailVerified: true}
}

var dmvMetadata = map[string]string{
	"Full Name":         "Alice Example",
	"Date of Birth":     "1990-01-01",
	"ID Number":         "D1234567",
	"Issuing Authority": "State DMV",
}

func TestIntegration_ConcurrentClaimsHaveOneWinner(t *testing.T) {
	w := setupWallet(t)
	ctx := context.Background()

	dmv := w.signUp(t, "auth0|dmv", "dmv@gov.example")
	alice := w.signUp(t, "auth0|alice", "alice@example.com")

	identity, err := w.ledger.Issue(ctx, dmv, issuance.IssueInput{
		Type:           identitytype.GovernmentID.Key,
		RecipientEmail: alice.Email,
		Metadata:       dmvMetadata,
	})
	require.NoError(t, err)

	const attempts = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		won     int
		already int
	)
	start := make(chan struct{})
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := w.claims.Claim(ctx, alice, identity.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case errors.Is(err, claim.ErrAlreadyClaimed):
				already++
			default:
				t.Errorf("unexpected claim error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, won)
	assert.Equal(t, attempts-1, already)

	creds, err := w.credentials.List(ctx, alice.UserID)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.True(t, creds[0].Verified)
	assert.Equal(t, dmvMetadata, creds[0].Metadata)

	stored, err := w.ledger.Get(ctx, identity.ID)
	require.NoError(t, err)
	assert.Equal(t, issuance.StatusClaimed, stored.Status)
	require.NotNil(t, stored.ClaimedBy)
	assert.Equal(t, alice.UserID, *stored.ClaimedBy)
}

func TestIntegration_IssueClaimShareVerify(t *testing.T) {
	w := setupWallet(t)
	ctx := context.Background()

	dmv := w.signUp(t, "auth0|dmv", "dmv@gov.example")
	alice := w.signUp(t, "auth0|alice", "alice@example.com")
	mallory := w.signUp(t, "auth0|mallory", "mallory@example.com")

	identity, err := w.ledger.Issue(ctx, dmv, issuance.IssueInput{
		Type:           identitytype.GovernmentID.Key,
		RecipientEmail: alice.Email,
		Metadata:       dmvMetadata,
	})
	require.NoError(t, err)

	issued, err := w.ledger.ListIssuedBy(ctx, dmv, "alice")
	require.NoError(t, err)
	require.Len(t, issued, 1)

	pending, err := w.claims.ListPending(ctx, alice)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, identity.ID, pending[0].ID)

	_, err = w.claims.Claim(ctx, mallory, identity.ID)
	assert.ErrorIs(t, err, claim.ErrNotRecipient)

	cred, err := w.claims.Claim(ctx, alice, identity.ID)
	require.NoError(t, err)

	pending, err = w.claims.ListPending(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, pending)

	var draft block.Draft
	draft.AddField(cred.ID, "Full Name")
	draft.AddField(cred.ID, "Date of Birth")
	b, err := w.blocks.Save(ctx, alice.UserID, "Age check", draft.Fields)
	require.NoError(t, err)

	handle, err := w.shares.Share(ctx, alice.UserID, share.Request{
		BlockID:        b.ID,
		RecipientEmail: "bar@example.com",
		DurationHours:  24,
	})
	require.NoError(t, err)

	// Editing the block afterwards must not change what the link shows.
	_, err = w.blocks.Update(ctx, alice.UserID, b.ID, "Name only", draft.Fields[:1])
	require.NoError(t, err)

	opened, err := w.shares.Open(ctx, handle.ID)
	require.NoError(t, err)
	assert.Equal(t, "Age check", opened.Snapshot.Name)
	require.Len(t, opened.Snapshot.Fields, 2)
	assert.Equal(t, "1990-01-01", opened.Snapshot.Fields[1].Value)
	require.NotNil(t, opened.AccessedAt)

	again, err := w.shares.Open(ctx, handle.ID)
	require.NoError(t, err)
	assert.True(t, again.AccessedAt.Equal(*opened.AccessedAt), "the first access time is kept")

	active, err := w.shares.ListActive(ctx, alice.UserID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.True(t, active[0].Accessed)
}

func TestIntegration_MigrationsKeepPoolOpen(t *testing.T) {
	w := setupWallet(t)
	ctx := context.Background()

	require.NoError(t, w.db.MigrateDown(ctx, w.migrations, w.logger))
	require.NoError(t, w.db.MigrateUp(ctx, w.migrations, w.logger))
	require.NoError(t, w.db.Health(ctx))

	alice := w.signUp(t, "auth0|alice", "alice@example.com")
	creds, err := w.credentials.List(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Empty(t, creds)
}

func TestIntegration_DeletedCredentialBreaksBlocks(t *testing.T) {
	w := setupWallet(t)
	ctx := context.Background()

	dmv := w.signUp(t, "auth0|dmv", "dmv@gov.example")
	alice := w.signUp(t, "auth0|alice", "alice@example.com")

	identity, err := w.ledger.Issue(ctx, dmv, issuance.IssueInput{
		Type:           identitytype.GovernmentID.Key,
		RecipientEmail: alice.Email,
		Metadata:       dmvMetadata,
	})
	require.NoError(t, err)
	cred, err := w.claims.Claim(ctx, alice, identity.ID)
	require.NoError(t, err)

	declared, err := w.credentials.CreateUnverified(ctx, alice.UserID, credential.CreateInput{
		Type:     "email",
		Issuer:   "self",
		Metadata: map[string]string{"Email": "alice@example.com"},
	})
	require.NoError(t, err)

	var draft block.Draft
	draft.AddField(cred.ID, "Full Name")
	b, err := w.blocks.Save(ctx, alice.UserID, "Name", draft.Fields)
	require.NoError(t, err)

	_, err = w.shares.Share(ctx, alice.UserID, share.Request{BlockID: b.ID, RecipientEmail: "bar@example.com", DurationHours: 1})
	require.NoError(t, err)

	got, err := w.stats.ForUser(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, &stats.UserStats{TotalCredentials: 2, VerifiedCredentials: 1, ActiveShares: 1, Blocks: 1}, got)

	require.NoError(t, w.credentials.Delete(ctx, alice.UserID, cred.ID))
	assert.ErrorIs(t, w.credentials.Delete(ctx, alice.UserID, cred.ID), credential.ErrNotFound)
	assert.ErrorIs(t, w.credentials.Delete(ctx, dmv.UserID, declared.ID), credential.ErrNotFound,
		"only the owner can delete")

	_, err = w.blocks.Get(ctx, alice.UserID, b.ID)
	require.NoError(t, err, "the block itself survives")

	_, err = w.shares.Share(ctx, alice.UserID, share.Request{BlockID: b.ID, RecipientEmail: "bar@example.com", DurationHours: 1})
	assert.ErrorIs(t, err, block.ErrUnknownCredential)

	_, err = w.blocks.Save(ctx, alice.UserID, "Stale", draft.Fields)
	assert.ErrorIs(t, err, block.ErrUnknownCredential)

	got, err = w.stats.ForUser(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, &stats.UserStats{TotalCredentials: 1, VerifiedCredentials: 0, ActiveShares: 1, Blocks: 1}, got)

	stored, err := w.ledger.Get(ctx, identity.ID)
	require.NoError(t, err)
	assert.Equal(t, issuance.StatusClaimed, stored.Status, "deleting the credential does not reopen the claim")
}
