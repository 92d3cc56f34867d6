package config

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// AuthConfig holds OIDC JWT verification configuration.
type AuthConfig struct {
	Issuer   string        `env:"OIDC_ISSUER"`   // e.g., "https://your-tenant.auth0.com/"
	Audience string        `env:"OIDC_AUDIENCE"` // e.g., "https://api.idvault.example"
	JWKSURL  string        `env:"OIDC_JWKS_URL"` // defaults to <issuer>/.well-known/jwks.json
	Leeway   time.Duration `env:"JWT_LEEWAY,default=30s"`
}

// EncryptionConfig holds the key used to seal identity metadata and share snapshots.
type EncryptionConfig struct {
	KeyBase64 string `env:"ENCRYPTION_KEY"`
	Key       []byte // decoded 32-byte key for AES-256-GCM
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=5m"`
	MigrationsPath  string        `env:"MIGRATIONS_PATH,default=migrations"`
	AutoMigrate     bool          `env:"DB_AUTO_MIGRATE,default=true"`
}

// RoleCacheConfig bounds how long a resolved role may be served from memory.
type RoleCacheConfig struct {
	Size int           `env:"ROLE_CACHE_SIZE,default=1024"`
	TTL  time.Duration `env:"ROLE_CACHE_TTL,default=30s"`
}

type Config struct {
	Port            string        `env:"PORT,default=8080"`
	Environment     string        `env:"ENV,default=development"`
	PublicOrigin    string        `env:"PUBLIC_ORIGIN,default=http://localhost:5173"`
	LogLevel        string        `env:"LOG_LEVEL,default=info"`
	LogFormat       string        `env:"LOG_FORMAT,default=json"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=30s"`
	FeedBuffer      int           `env:"FEED_BUFFER,default=64"`

	Database   DatabaseConfig
	Auth       AuthConfig
	Encryption EncryptionConfig
	RoleCache  RoleCacheConfig
}

// Load reads configuration from environment variables.
// It fails fast with clear errors for missing required values.
func Load() (*Config, error) {
	return LoadWith(context.Background(), envconfig.OsLookuper())
}

// LoadWith reads configuration through the given lookuper.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &cfg, lookuper); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	switch cfg.Environment {
	case "development", "staging", "production":
	default:
		return nil, fmt.Errorf("invalid ENV value %q: must be development, staging, or production", cfg.Environment)
	}

	var missing []string
	if cfg.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.Auth.Issuer == "" {
		missing = append(missing, "OIDC_ISSUER")
	}
	if cfg.Auth.Audience == "" {
		missing = append(missing, "OIDC_AUDIENCE")
	}
	if cfg.Encryption.KeyBase64 == "" {
		missing = append(missing, "ENCRYPTION_KEY")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}

	if err := validateDatabaseURL(cfg.Database.URL); err != nil {
		return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}

	key, err := decodeEncryptionKey(cfg.Encryption.KeyBase64)
	if err != nil {
		return nil, fmt.Errorf("invalid ENCRYPTION_KEY: %w", err)
	}
	cfg.Encryption.Key = key

	if err := validateHTTPURL(cfg.Auth.Issuer); err != nil {
		return nil, fmt.Errorf("invalid OIDC_ISSUER: %w", err)
	}
	if cfg.Auth.JWKSURL == "" {
		cfg.Auth.JWKSURL = strings.TrimSuffix(cfg.Auth.Issuer, "/") + "/.well-known/jwks.json"
	} else if err := validateHTTPURL(cfg.Auth.JWKSURL); err != nil {
		return nil, fmt.Errorf("invalid OIDC_JWKS_URL: %w", err)
	}

	if err := validateHTTPURL(cfg.PublicOrigin); err != nil {
		return nil, fmt.Errorf("invalid PUBLIC_ORIGIN: %w", err)
	}
	cfg.PublicOrigin = strings.TrimSuffix(cfg.PublicOrigin, "/")

	if cfg.RoleCache.Size < 1 {
		return nil, fmt.Errorf("invalid ROLE_CACHE_SIZE %d: must be at least 1", cfg.RoleCache.Size)
	}

	return &cfg, nil
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// decodeEncryptionKey decodes and validates a base64-encoded 32-byte key.
func decodeEncryptionKey(b64Key string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64Key))
	if err != nil {
		return nil, fmt.Errorf("must be valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("must be exactly 32 bytes (256 bits), got %d bytes", len(key))
	}
	return key, nil
}

// validateHTTPURL ensures u is an absolute http(s) URL.
func validateHTTPURL(u string) error {
	parsed, err := url.Parse(strings.TrimSpace(u))
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return fmt.Errorf("URL must use http or https scheme, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL must include a host")
	}
	return nil
}

// validateDatabaseURL ensures the database URL is a valid PostgreSQL connection string.
func validateDatabaseURL(dbURL string) error {
	parsed, err := url.Parse(dbURL)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}

	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return fmt.Errorf("URL must use postgres or postgresql scheme, got %q", parsed.Scheme)
	}

	if parsed.Host == "" {
		return fmt.Errorf("URL must include a host")
	}

	return nil
}
