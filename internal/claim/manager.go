// Package claim turns pending issued identities into verified credentials in
// the recipient's wallet.
package claim

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"idvault/internal/apperr"
	"idvault/internal/auth"
	"idvault/internal/credential"
	"idvault/internal/database"
	"idvault/internal/feed"
	"idvault/internal/issuance"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var claimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "idvault_claims_total",
	Help: "Claim attempts, by outcome.",
}, []string{"outcome"})

// Domain errors
var (
	ErrUnauthenticated  = apperr.New(apperr.ErrPermissionDenied, "sign in to claim identities")
	ErrEmailUnverified  = apperr.New(apperr.ErrPermissionDenied, "a verified email address is required to claim identities")
	ErrAlreadyClaimed   = issuance.ErrAlreadyClaimed
	ErrNotRecipient     = issuance.ErrNotRecipient
	ErrIdentityNotFound = issuance.ErrNotFound
)

// Manager runs the claim workflow.
type Manager struct {
	db          database.TxBeginner
	ledger      *issuance.Manager
	credentials *credential.Manager
	feed        feed.Publisher
	logger      *slog.Logger
}

// NewManager creates a claim manager. db must be the pool the ledger and
// credential datastores use.
func NewManager(db database.TxBeginner, ledger *issuance.Manager, credentials *credential.Manager, publisher feed.Publisher, logger *slog.Logger) *Manager {
	return &Manager{
		db:          db,
		ledger:      ledger,
		credentials: credentials,
		feed:        publisher,
		logger:      logger,
	}
}

// ListPending returns the identities waiting to be claimed by the caller.
// Matching on email is exact.
func (m *Manager) ListPending(ctx context.Context, p *auth.Principal) ([]*issuance.IssuedIdentity, error) {
	if p == nil {
		return nil, ErrUnauthenticated
	}
	if !p.EmailVerified {
		return nil, nil
	}
	return m.ledger.ListPendingFor(ctx, p.Email)
}

// Claim marks the identity claimed by the caller and copies it into the
// caller's wallet as a verified credential. Both writes commit together or
// not at all; of several concurrent claims on one identity exactly one wins.
func (m *Manager) Claim(ctx context.Context, p *auth.Principal, identityID uuid.UUID) (*credential.Credential, error) {
	if p == nil {
		return nil, ErrUnauthenticated
	}
	if p.Email == "" || !p.EmailVerified {
		return nil, ErrEmailUnverified
	}

	var cred *credential.Credential
	err := database.RunInTx(ctx, m.db, func(tx *sql.Tx) error {
		identity, err := m.ledger.MarkClaimed(ctx, tx, identityID, p.Email, p.UserID)
		if err != nil {
			return err
		}

		issuedAt := identity.IssuedAt
		cred = &credential.Credential{
			OwnerID:          p.UserID,
			Type:             identity.Type,
			Issuer:           identity.IssuerEmail,
			IssuedAt:         &issuedAt,
			SealedMetadata:   identity.SealedMetadata,
			SourceIdentityID: &identity.ID,
		}
		if err := m.credentials.InsertVerified(ctx, tx, cred); err != nil {
			if apperr.IsUniqueViolation(err) {
				return ErrAlreadyClaimed
			}
			return apperr.Provider(err, "failed to store claimed credential")
		}
		return nil
	})
	if err != nil {
		claimsTotal.WithLabelValues(outcome(err)).Inc()
		m.logger.WarnContext(ctx, "claim rejected",
			"identity_id", identityID, "user_id", p.UserID, "error", err)
		return nil, classify(err)
	}

	if err := m.credentials.Reveal(cred); err != nil {
		return nil, err
	}

	claimsTotal.WithLabelValues("claimed").Inc()
	m.logger.InfoContext(ctx, "identity claimed",
		"identity_id", identityID, "credential_id", cred.ID, "user_id", p.UserID)

	m.feed.Publish(p.UserID, feed.Event{Collection: feed.CollectionCredentials, Op: feed.OpCreated, ID: cred.ID})
	m.feed.Publish(p.UserID, feed.Event{Collection: feed.CollectionClaims, Op: feed.OpUpdated, ID: identityID})
	return cred, nil
}

// classify makes sure failures that escaped the transaction unclassified, such
// as begin or commit errors, surface as provider errors.
func classify(err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Provider(err, "failed to claim identity")
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, ErrNotRecipient):
		return "not_recipient"
	case errors.Is(err, ErrIdentityNotFound):
		return "not_found"
	default:
		return "error"
	}
}
