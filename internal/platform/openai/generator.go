// Package openai implements the generation.Generator interface on the
// OpenAI chat completion API. Setting a base URL override points the same
// client at any OpenAI-compatible backend, including locally hosted
// models.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/phrazzld/grimoire-api/internal/config"
	"github.com/phrazzld/grimoire-api/internal/generation"
	goopenai "github.com/sashabaranov/go-openai"
)

// Generator implements the generation.Generator interface using the
// OpenAI chat completion API.
type Generator struct {
	logger *slog.Logger
	config config.GenerationConfig
	client *goopenai.Client
	model  string
}

// NewGenerator creates a new OpenAI-backed Generator. When
// cfg.OpenAIBaseURL is set the client talks to that endpoint instead of
// api.openai.com.
func NewGenerator(logger *slog.Logger, cfg config.GenerationConfig) (*Generator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("%w: openai API key cannot be empty", generation.ErrInvalidConfig)
	}

	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	clientConfig := goopenai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientConfig.BaseURL = cfg.OpenAIBaseURL
	}

	return &Generator{
		logger: logger.With("component", "openai_generator"),
		config: cfg,
		client: goopenai.NewClientWithConfig(clientConfig),
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
		return nil, fmt.Errorf("%w: draft too short (%d chars, minimum %d)",
			generation.ErrInvalidResponse, len(text), minChars)
	}

	return &generation.GuideDraft{
		Content:   text,
		ModelName: g.model,
		WordCount: len(strings.Fields(text)),
	}, nil
}

// callWithRetry mirrors the Gemini backend's retry contract: exponential
// backoff with jitter for transient errors, immediate return for
// permanent ones.
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
		g.logger.InfoContext(ctx, "making chat completion call",
			"model", g.model,
			"attempt", attempt+1,
			"max_attempts", maxRetries+1)

		text, err := g.callOnce(ctx, prompt)
		if err == nil {
			return text, nil
		}

		g.logger.ErrorContext(ctx, "chat completion call failed",
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
// HTTP 429 and 5xx are transient; other 4xx statuses are permanent since
// retrying the same request cannot fix them.
func (g *Generator) callOnce(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: g.model,
		Messages: []goopenai.ChatCompletionMessage{
			{
				Role:    goopenai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		return "", classifyAPIError(err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", generation.ErrInvalidResponse)
	}

	choice := resp.Choices[0]
	if choice.FinishReason == goopenai.FinishReasonContentFilter {
		return "", fmt.Errorf("%w: finish reason content_filter", generation.ErrContentBlocked)
	}
	if choice.Message.Content == "" {
		return "", fmt.Errorf("%w: empty message content", generation.ErrInvalidResponse)
	}

	return choice.Message.Content, nil
}

func classifyAPIError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests,
			apiErr.HTTPStatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
		case apiErr.HTTPStatusCode == http.StatusUnauthorized,
			apiErr.HTTPStatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %v", generation.ErrInvalidConfig, err)
		case apiErr.HTTPStatusCode >= http.StatusBadRequest:
			return fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err)
		}
	}
	return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
}
