// Package gemini implements the generation.Generator interface on
// Google's Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/phrazzld/grimoire-api/internal/config"
	"github.com/phrazzld/grimoire-api/internal/generation"
	"google.golang.org/genai"
)

// Generator implements the generation.Generator interface using Google's
// Gemini API to produce long-form card guides.
type Generator struct {
	logger *slog.Logger
	config config.GenerationConfig
	client *genai.Client
	model  string
}

// NewGenerator creates a new Gemini-backed Generator.
//
// Parameters:
//   - ctx: Context for the operation, which can be used for cancellation
//   - logger: A structured logger for operation logging
//   - cfg: Generation configuration containing API key, model name, and retry settings
//
// Returns a properly initialized Generator or an error if initialization fails.
func NewGenerator(ctx context.Context, logger *slog.Logger, cfg config.GenerationConfig) (*Generator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}

	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			generation.ErrInvalidConfig, err)
	}

	return &Generator{
		logger: logger.With("component", "gemini_generator"),
		config: cfg,
		client: client,
		model:  cfg.ModelName,
	}, nil
}

// GenerateGuide implements generation.Generator.
func (g *Generator) GenerateGuide(ctx context.Context, req generation.GuideRequest) (*generation.GuideDraft, error) {
	prompt := generation.BuildPrompt(req)

	text, err := g.callWithRetry(ctx, prompt)
	if err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if minChars := g.config.MinDraftChars; minChars > 0 && len(text) < minChars {
		// Matches the discard rule for truncated generations: a short
		// draft is a defective response, not a transient failure.
		return nil, fmt.Errorf("%w: draft too short (%d chars, minimum %d)",
			generation.ErrInvalidResponse, len(text), minChars)
	}

	return &generation.GuideDraft{
		Content:   text,
		ModelName: g.model,
		WordCount: len(strings.Fields(text)),
	}, nil
}

// callWithRetry makes a call to the Gemini API with exponential backoff
// retry logic. It attempts the call up to MaxRetries+1 times, backing off
// with jitter between attempts for transient errors. Permanent errors
// (safety blocks, malformed responses) are returned immediately without
// retrying.
func (g *Generator) callWithRetry(ctx context.Context, prompt string) (string, error) {
	maxRetries := g.config.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	baseDelay := g.config.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for attempt := 0; ; attempt++ {
		g.logger.InfoContext(ctx, "making Gemini API call",
			"model", g.model,
			"attempt", attempt+1,
			"max_attempts", maxRetries+1)

		text, err := g.callOnce(ctx, prompt)
		if err == nil {
			g.logger.InfoContext(ctx, "Gemini API call successful",
				"attempt", attempt+1,
				"response_length", len(text))
			return text, nil
		}

		g.logger.ErrorContext(ctx, "Gemini API call failed",
			"attempt", attempt+1,
			"error", err)

		if generation.IsPermanent(err) {
			g.logger.WarnContext(ctx, "permanent error, not retrying")
			return "", err
		}

		if attempt >= maxRetries {
			return "", fmt.Errorf("%w: exceeded maximum retry attempts (%d): %v",
				generation.ErrTransientFailure, maxRetries, err)
		}

		// Exponential backoff with jitter:
		// delay = baseDelay * 2^attempt * (0.5 + rand(0, 0.5))
		backoff := float64(baseDelay) * math.Pow(2, float64(attempt))
		jitter := 0.5 + rng.Float64()*0.5
		delay := time.Duration(backoff * jitter)

		g.logger.InfoContext(ctx, "retrying after delay",
			"attempt", attempt+1,
			"delay", delay.String())

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", generation.ErrTransientFailure, ctx.Err())
		}
	}
}

// callOnce performs a single API call and classifies the outcome.
func (g *Generator) callOnce(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		// Transport and quota errors are assumed transient; the retry
		// loop gives up after the configured ceiling either way.
		return "", fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}

	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: finish reason safety", generation.ErrContentBlocked)
	}
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	var b strings.Builder
	for _, part := range cand.Content.Parts {
		b.WriteString(part.Text)
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: candidate contained no text parts", generation.ErrInvalidResponse)
	}

	return b.String(), nil
}
