package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/phrazzld/grimoire-api/internal/generation"
	"github.com/phrazzld/grimoire-api/internal/redact"
)

// State names the phases of the worker loop. The loop is a strict cycle:
// idle -> claiming -> generating -> (submitting | failing) -> idle. A lost
// claim short-circuits back to idle from any phase with the work dropped.
type State string

const (
	StateIdle       State = "idle"
	StateClaiming   State = "claiming"
	StateGenerating State = "generating"
	StateSubmitting State = "submitting"
	StateFailing    State = "failing"
)

// Config tunes the worker loop.
type Config struct {
	// Language and MinWords are passed through to the generation backend.
	Language string
	MinWords int

	// LeaseOverride requests a non-default lease on claim; zero means
	// the server default.
	LeaseOverride time.Duration

	// PollMinInterval and PollMaxInterval bound the exponential backoff
	// between claim attempts when the backlog is empty.
	PollMinInterval time.Duration
	PollMaxInterval time.Duration

	// GenerationRate limits generation calls per second; zero disables
	// the limiter.
	GenerationRate float64
}

// Loop drives one worker: claim a job, generate under a heartbeat-renewed
// lease, submit or fail, repeat until the context is cancelled.
type Loop struct {
	client  Client
	gen     generation.Generator
	cfg     Config
	logger  *slog.Logger
	limiter *rate.Limiter

	mu    sync.Mutex
	state State
}

// NewLoop creates a worker loop.
func NewLoop(client Client, gen generation.Generator, cfg Config, logger *slog.Logger) *Loop {
	if cfg.PollMinInterval <= 0 {
		cfg.PollMinInterval = 2 * time.Second
	}
	if cfg.PollMaxInterval < cfg.PollMinInterval {
		cfg.PollMaxInterval = 2 * time.Minute
	}

	var limiter *rate.Limiter
	if cfg.GenerationRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.GenerationRate), 1)
	}

	return &Loop{
		client:  client,
		gen:     gen,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "worker_loop")),
		limiter: limiter,
		state:   StateIdle,
	}
}

// State returns the loop's current phase.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Run polls for jobs until ctx is cancelled. It returns nil on shutdown;
// individual job failures are reported through the protocol and never
// stop the loop.
func (l *Loop) Run(ctx context.Context) error {
	backoff := l.cfg.PollMinInterval

	for {
		if ctx.Err() != nil {
			l.setState(StateIdle)
			return nil
		}

		l.setState(StateClaiming)
		claimed, err := l.client.Claim(ctx, l.cfg.LeaseOverride)
		switch {
		case errors.Is(err, ErrNoJob):
			l.setState(StateIdle)
			if !sleepCtx(ctx, jitter(backoff)) {
				return nil
			}
			backoff = minDuration(backoff*2, l.cfg.PollMaxInterval)
			continue

		case err != nil:
			if ctx.Err() != nil {
				l.setState(StateIdle)
				return nil
			}
			l.logger.Warn("claim attempt failed", "error", redact.Error(err))
			l.setState(StateIdle)
			if !sleepCtx(ctx, jitter(backoff)) {
				return nil
			}
			backoff = minDuration(backoff*2, l.cfg.PollMaxInterval)
			continue
		}

		backoff = l.cfg.PollMinInterval
		l.process(ctx, claimed)
	}
}

// process runs one claimed job through generation and outcome reporting.
func (l *Loop) process(ctx context.Context, claimed *ClaimedJob) {
	log := l.logger.With(
		slog.String("card_id", claimed.Job.CardID.String()),
		slog.String("card_name", claimed.Card.Name),
		slog.Int("attempt", claimed.Job.Attempts))

	log.Info("job claimed", "lease_expires_at", claimed.Job.LeaseExpiresAt)

	genCtx, genCancel := context.WithCancel(ctx)
	defer genCancel()

	// Heartbeat holds the lease while generation runs. A failed renewal
	// means another worker may already own the job, so generation is
	// cancelled and the work dropped.
	var lost atomic.Bool
	hbCtx, hbCancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.heartbeat(hbCtx, claimed.Job, log, genCancel, &lost)
	}()
	stopHeartbeat := func() {
		hbCancel()
		wg.Wait()
	}

	l.setState(StateGenerating)

	if l.limiter != nil {
		if err := l.limiter.Wait(genCtx); err != nil {
			stopHeartbeat()
			if lost.Load() {
				jobsProcessed.WithLabelValues(resultLost).Inc()
			}
			return
		}
	}

	start := time.Now()
	draft, err := l.gen.GenerateGuide(genCtx, generation.GuideRequest{
		Card:     claimed.Card,
		Language: l.cfg.Language,
		MinWords: l.cfg.MinWords,
	})
	generationDuration.Observe(time.Since(start).Seconds())

	stopHeartbeat()

	if lost.Load() {
		// The claim moved on while we were generating. Nobody wants this
		// draft; drop it without touching the protocol.
		log.Warn("dropping result, claim lost during generation")
		jobsProcessed.WithLabelValues(resultLost).Inc()
		return
	}

	if ctx.Err() != nil {
		// Shutdown mid-generation: leave the lease to expire.
		return
	}

	if err != nil {
		l.fail(ctx, claimed, log, err)
		return
	}

	l.setState(StateSubmitting)
	l.submit(ctx, claimed, log, draft)
}

// heartbeat renews the lease at a third of its remaining duration until
// cancelled. On ErrClaimLost it flags the loss and cancels generation;
// transient renew errors are logged and the next tick retries.
func (l *Loop) heartbeat(ctx context.Context, job Job, log *slog.Logger, genCancel context.CancelFunc, lost *atomic.Bool) {
	interval := time.Until(job.LeaseExpiresAt) / 3
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expiry, err := l.client.Renew(ctx, job.CardID)
			switch {
			case errors.Is(err, ErrClaimLost):
				log.Warn("lease renewal rejected, claim lost")
				renewFailures.Inc()
				lost.Store(true)
				genCancel()
				return
			case err != nil:
				if ctx.Err() != nil {
					return
				}
				// Transient: the lease may still be live, keep trying.
				log.Warn("lease renewal failed", "error", redact.Error(err))
			default:
				log.Debug("lease renewed", "lease_expires_at", expiry)
			}
		}
	}
}

// submit commits the draft, retrying transport errors. Submit is
// idempotent on the server, so a retry that lands twice is safe.
func (l *Loop) submit(ctx context.Context, claimed *ClaimedJob, log *slog.Logger, draft *generation.GuideDraft) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 && !sleepCtx(ctx, jitter(time.Duration(attempt)*time.Second)) {
			return
		}

		alreadyDone, err := l.client.Submit(ctx, claimed.Job.CardID, draft, l.cfg.Language)
		switch {
		case err == nil:
			if alreadyDone {
				log.Info("submit retry found guide already committed")
			} else {
				log.Info("guide submitted", "word_count", draft.WordCount, "model", draft.ModelName)
			}
			jobsProcessed.WithLabelValues(resultSubmitted).Inc()
			return

		case errors.Is(err, ErrClaimLost):
			log.Warn("dropping result, claim lost at submit")
			jobsProcessed.WithLabelValues(resultLost).Inc()
			return

		case errors.Is(err, ErrDraftRejected):
			l.setState(StateFailing)
			l.fail(ctx, claimed, log, fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err))
			return

		default:
			if ctx.Err() != nil {
				return
			}
			lastErr = err
			log.Warn("submit attempt failed", "error", redact.Error(err))
		}
	}

	// Transport kept failing; leave the lease to lapse so the job is
	// re-claimed rather than reporting a generation failure that never
	// happened.
	log.Error("giving up on submit, lease will lapse", "error", redact.Error(lastErr))
	jobsProcessed.WithLabelValues(resultRetryable).Inc()
}

// fail reports a failed attempt, routed permanent or retryable by the
// generation error taxonomy.
func (l *Loop) fail(ctx context.Context, claimed *ClaimedJob, log *slog.Logger, genErr error) {
	l.setState(StateFailing)

	permanent := generation.IsPermanent(genErr)
	cause := redact.Error(genErr)

	err := l.client.Fail(ctx, claimed.Job.CardID, cause, permanent)
	switch {
	case errors.Is(err, ErrClaimLost):
		log.Warn("failure report dropped, claim lost")
		jobsProcessed.WithLabelValues(resultLost).Inc()
		return
	case err != nil:
		if ctx.Err() != nil {
			return
		}
		// The lease lapses and the job is re-claimed; the attempt still
		// counted when it was claimed.
		log.Error("failed to report job failure", "error", redact.Error(err))
	}

	if permanent {
		log.Warn("job failed permanently", "cause", cause)
		jobsProcessed.WithLabelValues(resultPermanent).Inc()
	} else {
		log.Info("job failed, retryable", "cause", cause)
		jobsProcessed.WithLabelValues(resultRetryable).Inc()
	}
}

// jitter returns d scaled by a random factor in [0.5, 1.0].
func jitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.5 + rand.Float64()*0.5))
}

// sleepCtx sleeps for d, returning false if ctx was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
