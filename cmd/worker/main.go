// The worker binary claims analysis jobs from the dispatcher, produces
// guides through the configured generation backend, and submits them.
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

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/phrazzld/grimoire-api/internal/config"
	"github.com/phrazzld/grimoire-api/internal/generation"
	"github.com/phrazzld/grimoire-api/internal/platform/gemini"
	"github.com/phrazzld/grimoire-api/internal/platform/logger"
	"github.com/phrazzld/grimoire-api/internal/platform/openai"
	"github.com/phrazzld/grimoire-api/internal/redact"
	"github.com/phrazzld/grimoire-api/internal/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("worker exited with error", "error", redact.Error(err))
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

	if cfg.Worker.ServerURL == "" {
		return errors.New("worker.server_url is required")
	}
	if cfg.Worker.Secret == "" {
		return errors.New("worker.secret is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gen, err := newGenerator(ctx, log, cfg)
	if err != nil {
		return fmt.Errorf("failed to create generation backend: %w", err)
	}

	hostname, _ := os.Hostname()
	workerID := fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8])
	log = log.With("worker_id", workerID)

	client := worker.NewHTTPClient(cfg.Worker.ServerURL, workerID, cfg.Worker.Secret)

	// Registration retries so a worker started before the server comes
	// up does not flap.
	if err := registerWithRetry(ctx, client, log); err != nil {
		return err
	}

	if cfg.Worker.MetricsPort > 0 {
		go serveMetrics(cfg.Worker.MetricsPort, log)
	}

	loop := worker.NewLoop(client, gen, worker.Config{
		Language:        cfg.Generation.Language,
		MinWords:        cfg.Generation.MinWords,
		PollMinInterval: cfg.Worker.PollMinInterval,
		PollMaxInterval: cfg.Worker.PollMaxInterval,
		GenerationRate:  cfg.Worker.GenerationRate,
	}, log)

	log.Info("worker started",
		"server_url", cfg.Worker.ServerURL,
		"provider", cfg.Generation.Provider,
		"model", cfg.Generation.ModelName)

	return loop.Run(ctx)
}

// newGenerator selects the generation backend by configured provider.
func newGenerator(ctx context.Context, log *slog.Logger, cfg *config.Config) (generation.Generator, error) {
	switch cfg.Generation.Provider {
	case "openai":
		return openai.NewGenerator(log, cfg.Generation)
	case "", "gemini":
		return gemini.NewGenerator(ctx, log, cfg.Generation)
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Generation.Provider)
	}
}

func registerWithRetry(ctx context.Context, client *worker.HTTPClient, log *slog.Logger) error {
	backoff := time.Second
	for {
		err := client.Register(ctx)
		if err == nil {
			log.Info("registered with dispatcher")
			return nil
		}
		if errors.Is(err, worker.ErrUnauthorized) {
			return fmt.Errorf("registration rejected, check worker secret: %w", err)
		}

		log.Warn("registration failed, retrying",
			"error", redact.Error(err),
			"backoff", backoff)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func serveMetrics(port int, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info("metrics listening", "port", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server failed", "error", redact.Error(err))
	}
}
