package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/p-n-ai/ledger/internal/content"
	"github.com/p-n-ai/ledger/internal/grading"
	"github.com/p-n-ai/ledger/internal/platform/cache"
	"github.com/p-n-ai/ledger/internal/platform/config"
	"github.com/p-n-ai/ledger/internal/platform/database"
	"github.com/p-n-ai/ledger/internal/platform/logging"
	"github.com/p-n-ai/ledger/internal/ratelimit"
	"github.com/p-n-ai/ledger/internal/sandbox"
	"github.com/p-n-ai/ledger/internal/server"
	"github.com/p-n-ai/ledger/internal/session"
	"github.com/p-n-ai/ledger/internal/tutor"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(os.Stdout, logging.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Journal: cfg.Log.Journal,
	})
	if err != nil {
		slog.Error("failed to configure logging", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.close()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           a.handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       60 * time.Second,
	}

	go a.sweep(ctx, cfg.Session.SweepInterval, cfg.Session.TTL)

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "nodes", a.tree.Count())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// app holds the wired dependencies of the server.
type app struct {
	tree     *content.Tree
	sessions session.Store
	handler  http.Handler
	closers  []func()
}

// newApp wires the course, the sandbox and the optional database and cache.
// A configured dependency that cannot be reached is a startup error.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}

	tree, err := loadCourse(cfg.ContentPath)
	if err != nil {
		return nil, fmt.Errorf("loading course: %w", err)
	}
	a.tree = tree

	sb := sandbox.New(sandbox.Config{
		Timeout:        cfg.Sandbox.Timeout,
		MaxSteps:       cfg.Sandbox.MaxSteps,
		MaxOutputBytes: cfg.Sandbox.MaxOutputBytes,
		MaxConcurrent:  cfg.Sandbox.MaxConcurrent,
	})

	var checkers []server.Checker
	var events grading.EventLogger = grading.NopEventLogger{}
	if cfg.HasDatabase() {
		db, err := database.Open(ctx, database.Options{
			URL:      cfg.Database.URL,
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		checkers = append(checkers, db)

		pg := grading.NewPostgresEventLogger(db.Pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			a.close()
			return nil, err
		}
		events = pg
		slog.Info("grading audit log enabled")
	}

	var limiter ratelimit.Limiter = ratelimit.NopLimiter{}
	if cfg.RateLimit.Submissions > 0 {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit.Submissions, cfg.RateLimit.Window)
	}
	if cfg.HasCache() {
		c, err := cache.Open(ctx, cache.Options{URL: cfg.Cache.URL})
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = c.Close() })
		checkers = append(checkers, c)
		if cfg.RateLimit.Submissions > 0 {
			limiter = ratelimit.NewRedisLimiter(c.Client, cfg.RateLimit.Submissions, cfg.RateLimit.Window)
			slog.Info("rate limiting backed by redis")
		}
	}

	a.sessions = session.NewMemoryStore()
	svc := tutor.NewService(tree, grading.NewDispatcher(sb, events),
		tutor.WithStore(a.sessions),
		tutor.WithLimiter(limiter),
	)
	a.handler = server.New(svc,
		server.WithCheckers(checkers...),
		server.WithAllowedOrigins(cfg.Server.AllowedOrigins),
	).Handler()
	return a, nil
}

func loadCourse(path string) (*content.Tree, error) {
	if path == "" {
		return content.Default()
	}
	return content.LoadDir(path)
}

// sweep evicts idle sessions until ctx is done.
func (a *app) sweep(ctx context.Context, every, ttl time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := a.sessions.Sweep(now, ttl); n > 0 {
				slog.Info("evicted idle sessions", "count", n, "remaining", a.sessions.Len())
			}
		}
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
