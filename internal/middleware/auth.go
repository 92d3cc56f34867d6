// Package middleware provides HTTP middleware for idvault.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"idvault/internal/apperr"
	"idvault/internal/auth"
	"idvault/internal/jwtauth"
	"idvault/internal/role"
	"idvault/internal/user"
)

// TokenVerifier validates bearer tokens. *jwtauth.Verifier satisfies it.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*jwtauth.Claims, error)
}

// UserResolver maps verified claims to a stored user. *user.Manager satisfies it.
type UserResolver interface {
	Resolve(ctx context.Context, claims *jwtauth.Claims) (*user.Identity, error)
}

// Authorizer decides whether a principal holds a role. *role.Policy satisfies it.
type Authorizer interface {
	IsAuthorized(ctx context.Context, p *auth.Principal, required role.Level) bool
}

// RequireAuth returns middleware that authenticates requests with a bearer JWT.
// The token's user is synced into the user table and attached to the request
// as an auth.Principal.
//
// Error responses:
//   - 401 Unauthorized: missing, malformed or invalid token, or a token
//     without the subject and email a user record needs
//   - 500 Internal Server Error: the user could not be loaded
func RequireAuth(verifier TokenVerifier, users UserResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.ExtractBearerToken(r)
			if err != nil {
				logger.DebugContext(r.Context(), "rejected request without bearer token", "error", err)
				auth.WriteUnauthorized(w)
				return
			}

			claims, err := verifier.Verify(r.Context(), token)
			if err != nil {
				logger.InfoContext(r.Context(), "rejected invalid token", "error", err)
				auth.WriteUnauthorized(w)
				return
			}

			identity, err := users.Resolve(r.Context(), claims)
			if errors.Is(err, apperr.ErrValidation) {
				logger.InfoContext(r.Context(), "rejected token without usable identity", "subject", claims.Subject, "error", err)
				auth.WriteJSONError(w, http.StatusUnauthorized, apperr.Message(err), auth.TypeAuthentication)
				return
			}
			if err != nil {
				// Don't leak store details.
				logger.ErrorContext(r.Context(), "failed to resolve user", "subject", claims.Subject, "error", err)
				auth.WriteJSONError(w, http.StatusInternalServerError, "internal error", auth.TypeInternal)
				return
			}

			ctx := auth.WithPrincipal(r.Context(), &auth.Principal{
				UserID:        identity.ID,
				Subject:       identity.AuthSubject,
				Email:         identity.Email,
				EmailVerified: identity.EmailVerified,
				Name:          identity.Name,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole returns middleware that lets the request through only when the
// authenticated principal's role is at least required. It must run after
// RequireAuth; unauthenticated requests get 401, under-privileged ones 403.
func RequireRole(policy Authorizer, required role.Level) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := auth.PrincipalFrom(r.Context())
			if p == nil {
				auth.WriteUnauthorized(w)
				return
			}
			if !policy.IsAuthorized(r.Context(), p, required) {
				auth.WriteForbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
