// Package app wires the chatline server runtime: config, logging, identity
// store selection, HTTP routes, and the realtime presence gateway.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"chatline/cmd/identity"
	authapi "chatline/internal/auth/api"
	"chatline/internal/realtime"
	"chatline/cmd/security/token"

	"github.com/jackc/pgx/v5/pgxpool"
)

// App is the chatline server runtime. It owns the HTTP server wiring, the
// identity store lifecycle, and the realtime gateway dependencies.
type App struct {
	cfg Config
	log Logger

	store     identity.Store
	storeKind string

	dbPool *pgxpool.Pool // nil unless the Postgres store is selected
	mongo  *identity.MongoStore

	registry *realtime.Registry
	gateway  *realtime.Gateway

	auth *authapi.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	secret, err := ValidateSecurityConfig()
	if err != nil {
		return nil, err
	}
	codec := token.NewCodec(secret, cfg.TokenTTL)

	a := &App{cfg: cfg, log: log}
	if err := a.selectStore(context.Background()); err != nil {
		return nil, err
	}

	auth, err := authapi.NewHandler(log, a.store, codec, authapi.LoadConfigFromEnv())
	if err != nil {
		a.closeStore(context.Background())
		return nil, err
	}
	a.auth = auth

	a.registry = realtime.NewRegistry(log)
	a.gateway = realtime.NewGateway(log, a.registry)

	return a, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal
// server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	a.registerHTTP(mux)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "store", a.storeKind)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.closeStore(shutdownCtx)

	a.log.Info("server.stopped")
	return nil
}

// selectStore decides between Mongo, Postgres, and the in-memory dev store.
// Mongo URI wins when both are configured; presence never persists either way.
func (a *App) selectStore(ctx context.Context) error {
	cfg := a.cfg

	if cfg.MongoURI != "" {
		st, err := identity.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return err
		}
		a.store = st
		a.mongo = st
		a.storeKind = "mongo"
		a.log.Info("store.mongo", "database", cfg.MongoDatabase)
		return nil
	}

	if cfg.DatabaseURL != "" {
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return err
		}
		st, err := identity.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return err
		}
		a.store = st
		a.dbPool = pool
		a.storeKind = "postgres"
		a.log.Info("store.postgres")
		return nil
	}

	a.store = identity.NewMemoryStore()
	a.storeKind = "memory"
	a.log.Info("store.memory")
	return nil
}

// closeStore releases store resources.
// Ownership model: the app owns the pgx pool; PostgresStore.Close is a no-op.
// The Mongo client is owned by the MongoStore and closed through it.
func (a *App) closeStore(ctx context.Context) {
	if a.store != nil {
		if err := a.store.Close(ctx); err != nil {
			a.log.Error("store.close.fail", "err", err)
		}
	}
	if a.dbPool != nil {
		a.dbPool.Close()
	}
}

// durableStoreReady reports whether the configured durable store answers.
// The in-memory store counts as not durable.
func (a *App) durableStoreReady(ctx context.Context) error {
	switch a.storeKind {
	case "mongo":
		return a.mongo.Ping(ctx)
	case "postgres":
		return PingDB(ctx, a.dbPool, 2*time.Second)
	default:
		return errors.New("no durable store configured")
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
