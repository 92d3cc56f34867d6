package role

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idvault_role_lookups_total",
		Help: "Role lookups by result (cache_hit, stored, default, error).",
	}, []string{"result"})
)

// Querier is the read side of *sql.DB used by the store.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store reads user roles from the users table, caching results for a short TTL.
type Store struct {
	db     Querier
	cache  *expirable.LRU[uuid.UUID, Level]
	logger *slog.Logger
}

// NewStore creates a role store. size bounds the cache; ttl bounds how stale a
// cached role may be after a change made by another instance.
func NewStore(db Querier, logger *slog.Logger, size int, ttl time.Duration) *Store {
	return &Store{
		db:     db,
		cache:  expirable.NewLRU[uuid.UUID, Level](size, nil, ttl),
		logger: logger,
	}
}

// GetRole returns the stored level of userID. It never fails: a missing
// record, an out-of-range value or a lookup error all yield LevelUser, the
// least privileged level. Lookup errors are logged and not cached.
func (s *Store) GetRole(ctx context.Context, userID uuid.UUID) Level {
	if level, ok := s.cache.Get(userID); ok {
		lookupsTotal.WithLabelValues("cache_hit").Inc()
		return level
	}

	var stored int
	err := s.db.QueryRowContext(ctx, `SELECT role FROM users WHERE id = $1`, userID).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		lookupsTotal.WithLabelValues("default").Inc()
		s.cache.Add(userID, LevelUser)
		return LevelUser
	case err != nil:
		lookupsTotal.WithLabelValues("error").Inc()
		s.logger.ErrorContext(ctx, "role lookup failed, defaulting to user",
			"user_id", userID, "error", err)
		return LevelUser
	}

	level := Level(stored)
	if !level.Valid() {
		s.logger.WarnContext(ctx, "stored role out of range, defaulting to user",
			"user_id", userID, "role", stored)
		level = LevelUser
	}
	lookupsTotal.WithLabelValues("stored").Inc()
	s.cache.Add(userID, level)
	return level
}

// Invalidate drops any cached role for userID.
func (s *Store) Invalidate(userID uuid.UUID) {
	s.cache.Remove(userID)
}
