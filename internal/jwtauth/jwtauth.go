// Package jwtauth verifies RS256 access tokens issued by the OIDC provider.
package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrMissingSubject = errors.New("token has no subject")
)

// Claims represents the JWT claims from the identity provider.
type Claims struct {
	jwt.RegisteredClaims
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Name          string `json:"name,omitempty"`
}

// SubjectID returns the provider's user ID (the subject claim).
func (c *Claims) SubjectID() string {
	return c.Subject
}

// Config holds JWT verification configuration.
type Config struct {
	Issuer          string // e.g., "https://your-tenant.auth0.com/"
	Audience        string // e.g., "https://api.idvault.example"
	JWKSURL         string
	Leeway          time.Duration
	RefreshInterval time.Duration // how often the JWKS is refetched, default 1h
}

// Verifier checks token signatures against the provider's JWKS and validates
// the registered claims.
type Verifier struct {
	keys     keyfunc.Keyfunc
	issuer   string
	audience string
	leeway   time.Duration
}

// NewVerifier creates a verifier that keeps the JWKS refreshed in the background
// until ctx is cancelled. It does not fail when the provider is unreachable at
// startup; keys are fetched on the next refresh.
func NewVerifier(ctx context.Context, cfg Config, logger *slog.Logger) (*Verifier, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.JWKSURL == "" {
		return nil, errors.New("JWKS URL is required")
	}

	refresh := cfg.RefreshInterval
	if refresh <= 0 {
		refresh = time.Hour
	}

	storage, err := jwkset.NewStorageFromHTTP(cfg.JWKSURL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: 10 * time.Second},
		Ctx:                       ctx,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           refresh,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("JWKS refresh failed", "url", cfg.JWKSURL, "error", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{Ctx: ctx, Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("failed to create keyfunc: %w", err)
	}

	return NewVerifierWithKeyfunc(k, cfg)
}

// NewVerifierWithKeyfunc creates a verifier over an already built key source.
func NewVerifierWithKeyfunc(k keyfunc.Keyfunc, cfg Config) (*Verifier, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return &Verifier{
		keys:     k,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		leeway:   cfg.Leeway,
	}, nil
}

func validateConfig(cfg Config) error {
	if cfg.Issuer == "" {
		return errors.New("issuer is required")
	}
	if cfg.Audience == "" {
		return errors.New("audience is required")
	}
	return nil
}

// Verify verifies a JWT token and returns its claims.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.keys.KeyfuncCtx(ctx),
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}
