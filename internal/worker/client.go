// Package worker implements the guide generation worker: an HTTP client
// for the job protocol and the loop that claims jobs, runs the generation
// backend under a heartbeat-renewed lease, and reports outcomes.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/grimoire-api/internal/api"
	"github.com/phrazzld/grimoire-api/internal/domain"
	"github.com/phrazzld/grimoire-api/internal/generation"
)

// Worker-side protocol errors. These are the client's translation of the
// server's claim protocol responses.
var (
	// ErrNoJob signals an empty backlog. The loop backs off and polls again.
	ErrNoJob = errors.New("no job available")

	// ErrClaimLost signals that the server no longer recognizes this
	// worker as the claim holder. The only correct reaction is to drop
	// the work silently.
	ErrClaimLost = errors.New("job claim lost")

	// ErrDraftRejected signals the server refused the draft as implausible.
	ErrDraftRejected = errors.New("guide draft rejected by server")

	// ErrUnauthorized signals a rejected or expired token even after
	// re-registration.
	ErrUnauthorized = errors.New("authentication rejected")
)

// Job is the worker-side view of a claimed job.
type Job struct {
	CardID         uuid.UUID
	LeaseExpiresAt time.Time
	Attempts       int
}

// ClaimedJob pairs the claimed job with the card snapshot to generate
// against.
type ClaimedJob struct {
	Job  Job
	Card domain.Card
}

// Client is the job protocol as seen from the worker.
type Client interface {
	// Register exchanges the shared secret for a bearer token.
	Register(ctx context.Context) error

	// Claim requests one job. leaseOverride of zero means the server
	// default. Returns ErrNoJob when the backlog is empty.
	Claim(ctx context.Context, leaseOverride time.Duration) (*ClaimedJob, error)

	// Renew extends the lease on a claimed job, returning the new expiry.
	// Returns ErrClaimLost if the claim has been superseded.
	Renew(ctx context.Context, cardID uuid.UUID) (time.Time, error)

	// Submit commits a finished draft. alreadyDone reports an idempotent
	// retry that found the job completed. Returns ErrClaimLost if the
	// claim has been superseded, ErrDraftRejected if the server refused
	// the draft.
	Submit(ctx context.Context, cardID uuid.UUID, draft *generation.GuideDraft, lang string) (alreadyDone bool, err error)

	// Fail reports a failed attempt.
	Fail(ctx context.Context, cardID uuid.UUID, cause string, permanent bool) error
}

// HTTPClient is the production Client over the dispatcher's REST API.
type HTTPClient struct {
	baseURL  string
	workerID string
	secret   string
	http     *http.Client

	mu    sync.Mutex
	token string
}

// NewHTTPClient creates a protocol client for the given dispatcher.
// workerID is this worker's opaque identity; it must be stable across
// re-registrations so renewals match the original claim.
func NewHTTPClient(baseURL, workerID, secret string) *HTTPClient {
	return &HTTPClient{
		baseURL:  baseURL,
		workerID: workerID,
		secret:   secret,
		http: &http.Client{
			// Generation itself never rides this client; the protocol
			// calls are all small and fast.
			Timeout: 30 * time.Second,
		},
	}
}

// WorkerID returns the identity this client registers as.
func (c *HTTPClient) WorkerID() string {
	return c.workerID
}

// Register implements Client.
func (c *HTTPClient) Register(ctx context.Context) error {
	reqBody := api.TokenRequest{
		WorkerID: c.workerID,
		Secret:   c.secret,
		Role:     "worker",
	}

	var resp api.TokenResponse
	status, err := c.do(ctx, http.MethodPost, "/api/auth/token", "", reqBody, &resp)
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}
	if status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if status != http.StatusOK {
		return fmt.Errorf("registration failed: unexpected status %d", status)
	}

	c.mu.Lock()
	c.token = resp.Token
	c.mu.Unlock()
	return nil
}

// Claim implements Client.
func (c *HTTPClient) Claim(ctx context.Context, leaseOverride time.Duration) (*ClaimedJob, error) {
	reqBody := api.ClaimRequest{LeaseSeconds: int(leaseOverride / time.Second)}

	var resp api.ClaimResponse
	status, err := c.doAuth(ctx, http.MethodPost, "/api/jobs/claim", reqBody, &resp)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
	case http.StatusNoContent:
		return nil, ErrNoJob
	default:
		return nil, fmt.Errorf("claim failed: unexpected status %d", status)
	}

	cardID, err := uuid.Parse(resp.Job.CardID)
	if err != nil {
		return nil, fmt.Errorf("claim response has invalid card ID %q: %w", resp.Job.CardID, err)
	}
	if resp.Card == nil {
		return nil, fmt.Errorf("claim response missing card snapshot for %s", cardID)
	}

	return &ClaimedJob{
		Job: Job{
			CardID:         cardID,
			LeaseExpiresAt: resp.Job.LeaseExpiresAt,
			Attempts:       resp.Job.Attempts,
		},
		Card: *resp.Card,
	}, nil
}

// Renew implements Client.
func (c *HTTPClient) Renew(ctx context.Context, cardID uuid.UUID) (time.Time, error) {
	var resp api.JobResponse
	status, err := c.doAuth(ctx, http.MethodPost, "/api/jobs/"+cardID.String()+"/renew", nil, &resp)
	if err != nil {
		return time.Time{}, err
	}

	switch status {
	case http.StatusOK:
		return resp.LeaseExpiresAt, nil
	case http.StatusConflict, http.StatusNotFound:
		return time.Time{}, ErrClaimLost
	default:
		return time.Time{}, fmt.Errorf("renew failed: unexpected status %d", status)
	}
}

// Submit implements Client.
func (c *HTTPClient) Submit(ctx context.Context, cardID uuid.UUID, draft *generation.GuideDraft, lang string) (bool, error) {
	reqBody := api.SubmitRequest{
		Content:   draft.Content,
		ModelName: draft.ModelName,
		Lang:      lang,
	}

	var resp api.SubmitResponse
	status, err := c.doAuth(ctx, http.MethodPost, "/api/jobs/"+cardID.String()+"/submit", reqBody, &resp)
	if err != nil {
		return false, err
	}

	switch status {
	case http.StatusOK:
		return resp.Status == "already_done", nil
	case http.StatusConflict:
		return false, ErrClaimLost
	case http.StatusUnprocessableEntity:
		return false, ErrDraftRejected
	default:
		return false, fmt.Errorf("submit failed: unexpected status %d", status)
	}
}

// Fail implements Client.
func (c *HTTPClient) Fail(ctx context.Context, cardID uuid.UUID, cause string, permanent bool) error {
	reqBody := api.FailRequest{Cause: cause, Permanent: permanent}

	status, err := c.doAuth(ctx, http.MethodPost, "/api/jobs/"+cardID.String()+"/fail", reqBody, nil)
	if err != nil {
		return err
	}

	switch status {
	case http.StatusOK:
		return nil
	case http.StatusConflict, http.StatusNotFound:
		return ErrClaimLost
	default:
		return fmt.Errorf("fail report failed: unexpected status %d", status)
	}
}

// doAuth performs an authenticated request, re-registering once on 401.
func (c *HTTPClient) doAuth(ctx context.Context, method, path string, body, out interface{}) (int, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	status, err := c.do(ctx, method, path, token, body, out)
	if err != nil {
		return 0, err
	}
	if status != http.StatusUnauthorized {
		return status, nil
	}

	if err := c.Register(ctx); err != nil {
		return 0, err
	}

	c.mu.Lock()
	token = c.token
	c.mu.Unlock()

	status, err = c.do(ctx, method, path, token, body, out)
	if err != nil {
		return 0, err
	}
	if status == http.StatusUnauthorized {
		return 0, ErrUnauthorized
	}
	return status, nil
}

// do performs one HTTP round trip, JSON in and out. A nil out discards
// the response body. Decoding is skipped on non-2xx statuses so callers
// map them first.
func (c *HTTPClient) do(ctx context.Context, method, path, token string, body, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return 0, fmt.Errorf("failed to decode response: %w", err)
		}
	} else {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
	}

	return resp.StatusCode, nil
}
