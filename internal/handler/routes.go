package handler

import (
	"log/slog"
	"net/http"

	"idvault/internal/auth"
	"idvault/internal/block"
	"idvault/internal/claim"
	"idvault/internal/config"
	"idvault/internal/credential"
	"idvault/internal/feed"
	"idvault/internal/identitytype"
	"idvault/internal/issuance"
	"idvault/internal/middleware"
	"idvault/internal/role"
	"idvault/internal/share"
	"idvault/internal/stats"
	"idvault/internal/user"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps holds dependencies for HTTP handlers.
type Deps struct {
	Config *config.Config
	Logger *slog.Logger
	Health HealthChecker

	Verifier middleware.TokenVerifier
	Resolver middleware.UserResolver
	Policy   *role.Policy

	Users       *user.Manager
	Types       *identitytype.Registry
	Issuance    *issuance.Manager
	Claims      *claim.Manager
	Credentials *credential.Manager
	Blocks      *block.Manager
	Shares      *share.Manager
	Stats       *stats.Manager
	Feed        *feed.Hub
}

// NewRouter builds the HTTP surface.
//
// Public: /health, /api/v1/status, /metrics and /verify/{token}.
// Everything else under /api/v1 requires a bearer token; the issuer and admin
// groups additionally require that role or higher.
func NewRouter(deps *Deps) http.Handler {
	logger := deps.Logger

	me := NewMeHandler(deps.Policy, deps.Feed, logger)
	credentials := NewCredentialsHandler(deps.Credentials, logger)
	claims := NewClaimsHandler(deps.Claims, logger)
	blocks := NewBlocksHandler(deps.Blocks, logger)
	shares := NewSharesHandler(deps.Shares, logger)
	issuer := NewIssuerHandler(deps.Issuance, logger)
	adminUsers := NewAdminUsersHandler(deps.Users, logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		auth.WriteJSONError(w, http.StatusNotFound, "not found", auth.TypeNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		auth.WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed", auth.TypeInvalidRequest)
	})

	r.Get("/health", healthHandler(deps.Health, logger))
	r.Get("/api/v1/status", statusHandler(deps.Config))
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/verify/{token}", shares.Verify)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireAuth(deps.Verifier, deps.Resolver, logger))

		r.Get("/me", me.Get)
		r.Get("/me/events", me.Events)
		r.Get("/me/stats", statsHandler(deps.Stats, logger))
		r.Get("/identity-types", identityTypesHandler(deps.Types))

		r.Route("/credentials", func(r chi.Router) {
			r.Get("/", credentials.List)
			r.Post("/", credentials.Create)
			r.Get("/{id}", credentials.Get)
			r.Delete("/{id}", credentials.Delete)
		})

		r.Route("/claims", func(r chi.Router) {
			r.Get("/", claims.List)
			r.Post("/{id}", claims.Claim)
		})

		r.Route("/blocks", func(r chi.Router) {
			r.Get("/", blocks.List)
			r.Post("/", blocks.Create)
			r.Get("/{id}", blocks.Get)
			r.Put("/{id}", blocks.Update)
		})

		r.Route("/shares", func(r chi.Router) {
			r.Get("/", shares.List)
			r.Post("/", shares.Create)
		})

		r.Route("/issuer", func(r chi.Router) {
			r.Use(middleware.RequireRole(deps.Policy, role.LevelIssuer))
			r.Get("/identities", issuer.List)
			r.Post("/identities", issuer.Issue)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(deps.Policy, role.LevelAdmin))
			r.Get("/users", adminUsers.List)
			r.Get("/users/{id}", adminUsers.Get)
			r.Put("/users/{id}/role", adminUsers.SetRole)
		})
	})

	return r
}
