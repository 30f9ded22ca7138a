package generation

import (
	"context"

	"github.com/phrazzld/grimoire-api/internal/domain"
)

// GuideRequest carries everything a backend needs to produce one guide.
type GuideRequest struct {
	// Card is a snapshot of the card being analyzed.
	Card domain.Card

	// Language is the target language of the guide (BCP 47-ish short
	// code, e.g. "en").
	Language string

	// MinWords is the requested minimum length, passed through to the
	// prompt. Zero means no explicit minimum.
	MinWords int
}

// GuideDraft is an uncommitted generation result.
type GuideDraft struct {
	Content   string
	ModelName string
	WordCount int
}

// Generator defines the interface for producing long-form card guides.
// This interface is the boundary between the worker and external AI/LLM
// services; implementations live under internal/platform.
type Generator interface {
	// GenerateGuide produces a guide draft for the requested card.
	// Transient backend failures are retried internally up to the
	// implementation's configured ceiling before surfacing as
	// ErrTransientFailure; permanent failures (see errors.go) are
	// returned immediately.
	GenerateGuide(ctx context.Context, req GuideRequest) (*GuideDraft, error)
}
