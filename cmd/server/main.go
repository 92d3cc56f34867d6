package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"idvault/internal/block"
	"idvault/internal/claim"
	"idvault/internal/config"
	"idvault/internal/credential"
	"idvault/internal/database"
	"idvault/internal/feed"
	"idvault/internal/handler"
	"idvault/internal/identitytype"
	"idvault/internal/issuance"
	"idvault/internal/jwtauth"
	"idvault/internal/role"
	"idvault/internal/sealer"
	"idvault/internal/share"
	"idvault/internal/stats"
	"idvault/internal/user"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx := context.Background()

	db, err := database.Open(ctx, cfg.Database.URL, database.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("error closing database connection", "error", err)
		}
	}()
	logger.Info("database connection established")

	if cfg.Database.AutoMigrate {
		if err := db.MigrateUp(ctx, migrationsPath(cfg.Database.MigrationsPath), logger); err != nil {
			return err
		}
	}

	s, err := sealer.New(cfg.Encryption.Key)
	if err != nil {
		return err
	}

	verifier, err := jwtauth.NewVerifier(ctx, jwtauth.Config{
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		JWKSURL:  cfg.Auth.JWKSURL,
		Leeway:   cfg.Auth.Leeway,
	}, logger)
	if err != nil {
		return err
	}

	roles := role.NewStore(db.DB, logger, cfg.RoleCache.Size, cfg.RoleCache.TTL)
	hub := feed.NewHub(cfg.FeedBuffer, logger)
	types := identitytype.NewRegistry()

	users := user.NewManager(user.NewDatastore(db.DB), roles, logger)
	credentials := credential.NewManager(credential.NewDatastore(db.DB), s, hub, logger)
	ledger := issuance.NewManager(issuance.NewDatastore(db.DB), types, s, logger)
	blocks := block.NewManager(block.NewDatastore(db.DB), credentials, hub, logger)

	router := handler.NewRouter(&handler.Deps{
		Config:      cfg,
		Logger:      logger,
		Health:      db,
		Verifier:    verifier,
		Resolver:    users,
		Policy:      role.NewPolicy(roles),
		Users:       users,
		Types:       types,
		Issuance:    ledger,
		Claims:      claim.NewManager(db.DB, ledger, credentials, hub, logger),
		Credentials: credentials,
		Blocks:      blocks,
		Shares:      share.NewManager(share.NewDatastore(db.DB), blocks, s, hub, cfg.PublicOrigin, logger),
		Stats:       stats.NewManager(stats.NewDatastore(db.DB), logger),
		Feed:        hub,
	})

	// Cancelled on shutdown so open event streams return.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	server.RegisterOnShutdown(cancelBase)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("idvault server starting", "port", cfg.Port, "env", cfg.Environment)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-shutdown:
		logger.Info("initiating graceful shutdown", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("graceful shutdown failed, forcing shutdown", "error", err)
			if err := server.Close(); err != nil {
				return err
			}
		}
		logger.Info("server shutdown complete")
	}
	return nil
}

func newLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// migrationsPath resolves the migrations directory. A relative path is tried
// against the working directory, then next to the executable (for Docker).
func migrationsPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if _, err := os.Stat(path); err == nil {
		abs, _ := filepath.Abs(path)
		return abs
	}
	if execPath, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(execPath), path)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return "/app/migrations"
}
