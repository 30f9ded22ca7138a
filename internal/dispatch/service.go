package dispatch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/grimoire-api/internal/domain"
	"github.com/phrazzld/grimoire-api/internal/generation"
	"github.com/phrazzld/grimoire-api/internal/mention"
	"github.com/phrazzld/grimoire-api/internal/store"
)

// ErrDraftRejected is returned when a submitted draft fails the
// plausibility checks (too short, empty). The job stays claimed so the
// worker can fail it explicitly.
var ErrDraftRejected = errors.New("guide draft rejected")

// Config carries the dispatcher's tuning parameters.
type Config struct {
	// LeaseDuration is the default claim lease.
	LeaseDuration time.Duration

	// MaxLeaseDuration caps worker-requested lease overrides.
	MaxLeaseDuration time.Duration

	// MaxAttempts is the attempt ceiling after which a failing job
	// becomes terminal.
	MaxAttempts int

	// MinGuideLength rejects drafts shorter than this many characters.
	MinGuideLength int
}

// IndexSource supplies the current mention index snapshot for
// post-submit mention accounting.
type IndexSource interface {
	Index(ctx context.Context) (*mention.Index, error)
}

// ClaimedJob is the claim response: the job plus the card snapshot the
// worker needs as generation context.
type ClaimedJob struct {
	Job  *domain.AnalysisJob
	Card *domain.Card
}

// SubmitOutcome distinguishes a first-time commit from an idempotent
// retry that found the job already done.
type SubmitOutcome string

const (
	SubmitCommitted   SubmitOutcome = "committed"
	SubmitAlreadyDone SubmitOutcome = "already_done"
)

// Service is the job dispatcher.
type Service struct {
	cfg      Config
	db       *sql.DB
	jobs     store.JobStore
	cards    store.CardStore
	guides   store.GuideStore
	mentions store.MentionStatsStore
	index    IndexSource
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a dispatcher over the given stores. db may be nil
// when the stores are not SQL-backed (in-memory deployments and tests);
// submissions then commit without a wrapping transaction, which is safe
// because the in-memory stores serialize internally.
func NewService(
	cfg Config,
	db *sql.DB,
	jobs store.JobStore,
	cards store.CardStore,
	guides store.GuideStore,
	mentions store.MentionStatsStore,
	index IndexSource,
	logger *slog.Logger,
) *Service {
	return &Service{
		cfg:      cfg,
		db:       db,
		jobs:     jobs,
		cards:    cards,
		guides:   guides,
		mentions: mentions,
		index:    index,
		logger:   logger.With("component", "dispatch_service"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Claim hands one claimable job to the worker along with the card
// snapshot. leaseOverride extends the default lease up to the configured
// maximum; zero means use the default. Returns store.ErrNoJobAvailable
// when the backlog has nothing claimable.
func (s *Service) Claim(ctx context.Context, workerID string, leaseOverride time.Duration) (*ClaimedJob, error) {
	lease := s.cfg.LeaseDuration
	if leaseOverride > 0 {
		lease = leaseOverride
		if s.cfg.MaxLeaseDuration > 0 && lease > s.cfg.MaxLeaseDuration {
			lease = s.cfg.MaxLeaseDuration
		}
	}

	job, err := s.jobs.Claim(ctx, workerID, lease, s.now())
	if err != nil {
		if errors.Is(err, store.ErrNoJobAvailable) {
			claimsTotal.WithLabelValues(outcomeEmpty).Inc()
			return nil, err
		}
		claimsTotal.WithLabelValues(outcomeError).Inc()
		return nil, fmt.Errorf("claim failed: %w", err)
	}

	card, err := s.cards.GetByID(ctx, job.CardID)
	if err != nil {
		// The job was claimed but its card is gone; surface the error
		// and let the lease expire rather than inventing a rollback.
		claimsTotal.WithLabelValues(outcomeError).Inc()
		return nil, fmt.Errorf("claimed job %s has no card: %w", job.CardID, err)
	}

	claimsTotal.WithLabelValues(outcomeOK).Inc()
	s.logger.Info("job claimed",
		"card_id", job.CardID,
		"worker_id", workerID,
		"attempt", job.Attempts,
		"lease_expires_at", job.LeaseExpiresAt)

	return &ClaimedJob{Job: job, Card: card}, nil
}

// Renew extends the worker's lease on a claimed job.
func (s *Service) Renew(ctx context.Context, cardID uuid.UUID, workerID string) (*domain.AnalysisJob, error) {
	job, err := s.jobs.Renew(ctx, cardID, workerID, s.cfg.LeaseDuration, s.now())
	if err != nil {
		if errors.Is(err, store.ErrNotJobOwner) || errors.Is(err, store.ErrJobAlreadyDone) {
			renewsTotal.WithLabelValues(outcomeLostRace).Inc()
		} else {
			renewsTotal.WithLabelValues(outcomeError).Inc()
		}
		return nil, err
	}

	renewsTotal.WithLabelValues(outcomeOK).Inc()
	return job, nil
}

// Submit commits a guide draft: the job transition to done and the guide
// upsert happen in one transaction, so a crash between them cannot leave
// a done job without its guide. A retry that finds the job already done
// returns SubmitAlreadyDone with no error; a submit from a superseded
// lease holder fails with store.ErrNotJobOwner and the draft is
// discarded; the current holder's result wins.
func (s *Service) Submit(ctx context.Context, cardID uuid.UUID, workerID string, draft *generation.GuideDraft, lang string) (SubmitOutcome, error) {
	if draft == nil || len(draft.Content) < s.cfg.MinGuideLength {
		submitsTotal.WithLabelValues(outcomeRejected).Inc()
		return "", fmt.Errorf("%w: draft shorter than %d characters", ErrDraftRejected, s.cfg.MinGuideLength)
	}

	guide, err := domain.NewGuide(cardID, draft.Content, draft.ModelName, lang)
	if err != nil {
		submitsTotal.WithLabelValues(outcomeRejected).Inc()
		return "", fmt.Errorf("%w: %v", ErrDraftRejected, err)
	}

	now := s.now()
	commit := func(jobs store.JobStore, guides store.GuideStore) error {
		if err := jobs.MarkDone(ctx, cardID, workerID, now); err != nil {
			return err
		}
		return guides.Upsert(ctx, guide)
	}

	if s.db != nil {
		err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
			return commit(s.jobs.WithTx(tx), s.guides.WithTx(tx))
		})
	} else {
		err = commit(s.jobs, s.guides)
	}

	if err != nil {
		switch {
		case errors.Is(err, store.ErrJobAlreadyDone):
			submitsTotal.WithLabelValues(outcomeLostRace).Inc()
			s.logger.Info("submit retry found job already done",
				"card_id", cardID,
				"worker_id", workerID)
			return SubmitAlreadyDone, nil
		case errors.Is(err, store.ErrNotJobOwner):
			submitsTotal.WithLabelValues(outcomeLostRace).Inc()
			return "", err
		default:
			submitsTotal.WithLabelValues(outcomeError).Inc()
			return "", fmt.Errorf("submit failed: %w", err)
		}
	}

	submitsTotal.WithLabelValues(outcomeOK).Inc()
	s.logger.Info("guide committed",
		"card_id", cardID,
		"worker_id", workerID,
		"word_count", guide.WordCount,
		"model", guide.ModelName)

	s.recordMentions(ctx, cardID, guide.Content)

	return SubmitCommitted, nil
}

// recordMentions updates the mention histogram for the cards named in a
// freshly committed guide. Failures are logged and swallowed: mention
// statistics are derived bookkeeping, never worth failing a submit over.
func (s *Service) recordMentions(ctx context.Context, cardID uuid.UUID, content string) {
	if s.index == nil || s.mentions == nil {
		return
	}

	ix, err := s.index.Index(ctx)
	if err != nil {
		s.logger.Warn("skipping mention stats, index unavailable",
			"card_id", cardID,
			"error", err)
		return
	}

	entries := ix.FindMentions(content, cardID)
	if len(entries) == 0 {
		return
	}

	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.CardID
	}

	if err := s.mentions.RecordMentions(ctx, cardID, ids, s.now()); err != nil {
		s.logger.Warn("failed to record mention stats",
			"card_id", cardID,
			"error", err)
	}
}

// Fail records a failed attempt. The job reverts to pending for retry
// unless the worker marks the failure permanent or the attempt ceiling
// is reached, in which case it becomes terminal.
func (s *Service) Fail(ctx context.Context, cardID uuid.UUID, workerID, cause string, permanent bool) (*domain.AnalysisJob, error) {
	job, err := s.jobs.Fail(ctx, cardID, workerID, cause, permanent, s.cfg.MaxAttempts, s.now())
	if err != nil {
		if errors.Is(err, store.ErrNotJobOwner) || errors.Is(err, store.ErrJobAlreadyDone) {
			failsTotal.WithLabelValues(outcomeLostRace).Inc()
		} else {
			failsTotal.WithLabelValues(outcomeError).Inc()
		}
		return nil, err
	}

	failsTotal.WithLabelValues(outcomeOK).Inc()
	if job.State == domain.JobStateFailed {
		s.logger.Warn("job failed terminally",
			"card_id", cardID,
			"worker_id", workerID,
			"attempts", job.Attempts,
			"cause", cause)
	} else {
		s.logger.Info("job failed, requeued for retry",
			"card_id", cardID,
			"worker_id", workerID,
			"attempts", job.Attempts,
			"cause", cause)
	}

	return job, nil
}

// Requeue is the operator-triggered re-analysis of a completed card.
func (s *Service) Requeue(ctx context.Context, cardID uuid.UUID) error {
	return s.jobs.Requeue(ctx, cardID, s.now())
}

// ResetFailed is the operator reset of a terminally failed job.
func (s *Service) ResetFailed(ctx context.Context, cardID uuid.UUID) error {
	return s.jobs.ResetFailed(ctx, cardID, s.now())
}

// Stats summarizes pipeline progress.
type Stats struct {
	Jobs        map[domain.JobState]int64 `json:"jobs"`
	TotalCards  int64                     `json:"total_cards"`
	TotalGuides int64                     `json:"total_guides"`
}

// Stats reports job counts by state and catalog totals, refreshing the
// jobs-by-state gauge as a side effect.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.jobs.CountByState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	for _, state := range []domain.JobState{
		domain.JobStatePending, domain.JobStateClaimed, domain.JobStateDone, domain.JobStateFailed,
	} {
		jobsByState.WithLabelValues(string(state)).Set(float64(counts[state]))
	}

	totalCards, err := s.cards.CountAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count cards: %w", err)
	}

	totalGuides, err := s.guides.CountAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count guides: %w", err)
	}

	return &Stats{
		Jobs:        counts,
		TotalCards:  totalCards,
		TotalGuides: totalGuides,
	}, nil
}

// MentionRank is one row of the most-mentioned listing: a card plus its
// accumulated cross-guide mention count.
type MentionRank struct {
	CardID          uuid.UUID `json:"card_id"`
	Name            string    `json:"name"`
	MentionCount    int64     `json:"mention_count"`
	LastMentionedAt time.Time `json:"last_mentioned_at"`
}

// TopMentioned lists the n most-mentioned cards, most mentioned first,
// enriched with card names. Stat rows whose card has since left the
// catalog are skipped.
func (s *Service) TopMentioned(ctx context.Context, n int) ([]MentionRank, error) {
	if s.mentions == nil {
		return []MentionRank{}, nil
	}

	stats, err := s.mentions.Top(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("failed to list top mentions: %w", err)
	}

	ranks := make([]MentionRank, 0, len(stats))
	for _, st := range stats {
		card, err := s.cards.GetByID(ctx, st.CardID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to load card %s: %w", st.CardID, err)
		}
		ranks = append(ranks, MentionRank{
			CardID:          st.CardID,
			Name:            card.Name,
			MentionCount:    st.MentionCount,
			LastMentionedAt: st.LastMentionedAt,
		})
	}

	return ranks, nil
}

// MentionCount reports how often the card has been named in other cards'
// guides. A card that has never been mentioned counts as zero.
func (s *Service) MentionCount(ctx context.Context, cardID uuid.UUID) (int64, error) {
	if s.mentions == nil {
		return 0, nil
	}

	stat, err := s.mentions.GetByCardID(ctx, cardID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to load mention stats: %w", err)
	}

	return stat.MentionCount, nil
}

// SetClock overrides the service's time source. Tests use this to drive
// lease expiry deterministically.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}
