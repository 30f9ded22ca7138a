package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/grimoire-api/internal/domain"
	"github.com/phrazzld/grimoire-api/internal/generation"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClient scripts the protocol: it hands out the queued jobs once
// and records every outcome call.
type fakeClient struct {
	mu sync.Mutex

	queue []*ClaimedJob

	renewErr  error
	submitErr error
	failErr   error

	submits []uuid.UUID
	fails   []failCall
	renews  int
}

type failCall struct {
	cardID    uuid.UUID
	cause     string
	permanent bool
}

func (f *fakeClient) Register(ctx context.Context) error { return nil }

func (f *fakeClient) Claim(ctx context.Context, _ time.Duration) (*ClaimedJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return nil, ErrNoJob
	}
	job := f.queue[0]
	f.queue = f.queue[1:]
	return job, nil
}

func (f *fakeClient) Renew(ctx context.Context, cardID uuid.UUID) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renews++
	if f.renewErr != nil {
		return time.Time{}, f.renewErr
	}
	return time.Now().Add(time.Minute), nil
}

func (f *fakeClient) Submit(ctx context.Context, cardID uuid.UUID, draft *generation.GuideDraft, lang string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return false, f.submitErr
	}
	f.submits = append(f.submits, cardID)
	return false, nil
}

func (f *fakeClient) Fail(ctx context.Context, cardID uuid.UUID, cause string, permanent bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	f.fails = append(f.fails, failCall{cardID: cardID, cause: cause, permanent: permanent})
	return nil
}

func (f *fakeClient) submitted() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.submits...)
}

func (f *fakeClient) failed() []failCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]failCall(nil), f.fails...)
}

// fakeGenerator returns a scripted result, optionally blocking until its
// context is cancelled.
type fakeGenerator struct {
	draft *generation.GuideDraft
	err   error
	block bool
}

func (g *fakeGenerator) GenerateGuide(ctx context.Context, req generation.GuideRequest) (*generation.GuideDraft, error) {
	if g.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if g.err != nil {
		return nil, g.err
	}
	return g.draft, nil
}

func queuedJob() *ClaimedJob {
	card, _ := domain.NewCard(uuid.New(), "Lightning Bolt")
	return &ClaimedJob{
		Job: Job{
			CardID:         card.ID,
			LeaseExpiresAt: time.Now().Add(time.Minute),
			Attempts:       1,
		},
		Card: *card,
	}
}

func testConfig() Config {
	return Config{
		Language:        "en",
		PollMinInterval: 5 * time.Millisecond,
		PollMaxInterval: 20 * time.Millisecond,
	}
}

// runLoop runs the loop until done returns true or the deadline passes.
func runLoop(t *testing.T, loop *Loop, done func() bool) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		_ = loop.Run(ctx)
		close(finished)
	}()

	deadline := time.After(5 * time.Second)
	for !done() {
		select {
		case <-deadline:
			cancel()
			<-finished
			t.Fatal("loop did not reach expected state before deadline")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after context cancellation")
	}
}

func TestLoop_ClaimGenerateSubmit(t *testing.T) {
	t.Parallel()

	job := queuedJob()
	client := &fakeClient{queue: []*ClaimedJob{job}}
	gen := &fakeGenerator{draft: &generation.GuideDraft{Content: "guide", ModelName: "m", WordCount: 1}}

	loop := NewLoop(client, gen, testConfig(), testLogger())
	runLoop(t, loop, func() bool { return len(client.submitted()) == 1 })

	assert.Equal(t, []uuid.UUID{job.Job.CardID}, client.submitted())
	assert.Empty(t, client.failed())
}

func TestLoop_PermanentGenerationErrorFailsPermanently(t *testing.T) {
	t.Parallel()

	job := queuedJob()
	client := &fakeClient{queue: []*ClaimedJob{job}}
	gen := &fakeGenerator{err: generation.ErrContentBlocked}

	loop := NewLoop(client, gen, testConfig(), testLogger())
	runLoop(t, loop, func() bool { return len(client.failed()) == 1 })

	fails := client.failed()
	require.Len(t, fails, 1)
	assert.Equal(t, job.Job.CardID, fails[0].cardID)
	assert.True(t, fails[0].permanent)
	assert.Empty(t, client.submitted())
}

func TestLoop_TransientGenerationErrorFailsRetryable(t *testing.T) {
	t.Parallel()

	client := &fakeClient{queue: []*ClaimedJob{queuedJob()}}
	gen := &fakeGenerator{err: generation.ErrTransientFailure}

	loop := NewLoop(client, gen, testConfig(), testLogger())
	runLoop(t, loop, func() bool { return len(client.failed()) == 1 })

	fails := client.failed()
	require.Len(t, fails, 1)
	assert.False(t, fails[0].permanent)
}

func TestLoop_ClaimLostAtSubmitDropsSilently(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		queue:     []*ClaimedJob{queuedJob()},
		submitErr: ErrClaimLost,
	}
	gen := &fakeGenerator{draft: &generation.GuideDraft{Content: "guide", ModelName: "m"}}

	loop := NewLoop(client, gen, testConfig(), testLogger())

	var idleAfterJob bool
	runLoop(t, loop, func() bool {
		// The loop must move on to polling again without reporting
		// failure for the lost claim.
		client.mu.Lock()
		empty := len(client.queue) == 0
		client.mu.Unlock()
		idleAfterJob = empty && loop.State() == StateClaiming || loop.State() == StateIdle
		return idleAfterJob && empty
	})

	assert.Empty(t, client.failed(), "a lost claim must not be reported as failure")
	assert.Empty(t, client.submitted())
}

func TestLoop_RejectedDraftReportsPermanentFailure(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		queue:     []*ClaimedJob{queuedJob()},
		submitErr: ErrDraftRejected,
	}
	gen := &fakeGenerator{draft: &generation.GuideDraft{Content: "x", ModelName: "m"}}

	loop := NewLoop(client, gen, testConfig(), testLogger())
	runLoop(t, loop, func() bool { return len(client.failed()) == 1 })

	fails := client.failed()
	require.Len(t, fails, 1)
	assert.True(t, fails[0].permanent, "a rejected draft is a permanent defect")
}

func TestLoop_HeartbeatLossCancelsGeneration(t *testing.T) {
	t.Parallel()

	job := queuedJob()
	// Lease about to expire forces a fast heartbeat interval.
	job.Job.LeaseExpiresAt = time.Now().Add(3 * time.Second)

	client := &fakeClient{
		queue:    []*ClaimedJob{job},
		renewErr: ErrClaimLost,
	}
	gen := &fakeGenerator{block: true}

	loop := NewLoop(client, gen, testConfig(), testLogger())
	start := time.Now()
	runLoop(t, loop, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.renews >= 1 && len(client.queue) == 0
	})

	// Generation was cancelled by the failed renewal rather than running
	// forever; nothing was submitted or failed for the lost claim.
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Empty(t, client.submitted())
	assert.Empty(t, client.failed())
}

func TestLoop_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	gen := &fakeGenerator{}
	loop := NewLoop(client, gen, testConfig(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan error, 1)
	go func() { finished <- loop.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-finished:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop on context cancellation")
	}
}

func TestLoop_FailReportClaimLostIsSilent(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		queue:   []*ClaimedJob{queuedJob()},
		failErr: ErrClaimLost,
	}
	gen := &fakeGenerator{err: errors.New("backend exploded")}

	loop := NewLoop(client, gen, testConfig(), testLogger())
	runLoop(t, loop, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return len(client.queue) == 0 && loop.State() != StateGenerating
	})

	assert.Empty(t, client.failed())
	assert.Empty(t, client.submitted())
}
