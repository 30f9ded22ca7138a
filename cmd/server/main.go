// The server binary runs the dispatcher: the catalog, the analysis
// backlog, and the HTTP API workers and operators drive.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/phrazzld/grimoire-api/internal/api"
	apimiddleware "github.com/phrazzld/grimoire-api/internal/api/middleware"
	"github.com/phrazzld/grimoire-api/internal/catalog"
	"github.com/phrazzld/grimoire-api/internal/config"
	"github.com/phrazzld/grimoire-api/internal/dispatch"
	"github.com/phrazzld/grimoire-api/internal/events"
	"github.com/phrazzld/grimoire-api/internal/platform/logger"
	"github.com/phrazzld/grimoire-api/internal/platform/memstore"
	"github.com/phrazzld/grimoire-api/internal/platform/postgres"
	"github.com/phrazzld/grimoire-api/internal/redact"
	"github.com/phrazzld/grimoire-api/internal/service/auth"
	"github.com/phrazzld/grimoire-api/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", "error", redact.Error(err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores: Postgres when a database URL is configured, in-memory
	// otherwise. The in-memory mode serves development and tests; it
	// loses all state on restart.
	var (
		db       *sql.DB
		jobs     store.JobStore
		cards    store.CardStore
		guides   store.GuideStore
		mentions store.MentionStatsStore
	)
	if cfg.Database.URL != "" {
		db, err = sql.Open("pgx", cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer func() { _ = db.Close() }()

		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}

		if err := postgres.RunMigrations(db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		jobs = postgres.NewJobStore(db)
		cards = postgres.NewCardStore(db)
		guides = postgres.NewGuideStore(db)
		mentions = postgres.NewMentionStatsStore(db)
		log.Info("using postgres stores")
	} else {
		jobs = memstore.NewJobStore()
		cards = memstore.NewCardStore()
		guides = memstore.NewGuideStore()
		mentions = memstore.NewMentionStatsStore()
		log.Warn("no database configured, using in-memory stores")
	}

	indexProvider := catalog.NewIndexProvider(cards, log)

	emitter := events.NewInMemoryEventEmitter(log)
	emitter.RegisterHandler(catalog.NewEnqueueHandler(jobs, log))

	dispatcher := dispatch.NewService(dispatch.Config{
		LeaseDuration:    cfg.Backlog.LeaseDuration,
		MaxLeaseDuration: cfg.Backlog.MaxLeaseDuration,
		MaxAttempts:      cfg.Backlog.MaxAttempts,
		MinGuideLength:   cfg.Backlog.MinGuideLength,
	}, db, jobs, cards, guides, mentions, indexProvider, log)

	catalogService := catalog.NewService(cards, guides, jobs, emitter, indexProvider, log)

	jwtService, err := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenLifetime)
	if err != nil {
		return fmt.Errorf("failed to create JWT service: %w", err)
	}

	router := api.NewRouter(api.RouterDeps{
		Auth: api.NewAuthHandler(
			jwtService,
			auth.NewBcryptVerifier(),
			cfg.Auth.WorkerSecretHash,
			cfg.Auth.AdminSecretHash,
			log,
		),
		Workers: api.NewWorkerHandler(dispatcher, log),
		Cards:   api.NewCardHandler(catalogService, dispatcher, log),
		AuthMW:  apimiddleware.NewAuthMiddleware(jwtService),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			"port", cfg.Server.Port,
			"lease_duration", cfg.Backlog.LeaseDuration,
			"max_attempts", cfg.Backlog.MaxAttempts)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
