package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Guide-specific validation errors
var (
	// ErrGuideCardIDEmpty is returned when a guide's card ID is empty or nil.
	ErrGuideCardIDEmpty = errors.New("guide card ID cannot be empty")

	// ErrGuideContentEmpty is returned when a guide's content is empty.
	ErrGuideContentEmpty = errors.New("guide content cannot be empty")

	// ErrGuideModelEmpty is returned when a guide's model name is empty.
	ErrGuideModelEmpty = errors.New("guide model name cannot be empty")
)

// Guide is the long-form analysis text generated for a card. Exactly one
// guide exists per card; a re-analysis replaces the row rather than adding
// a second one. Content is markdown with mention markers resolved at read
// time, never at write time.
type Guide struct {
	CardID      uuid.UUID `json:"card_id"`
	Content     string    `json:"content"`
	ModelName   string    `json:"model_name"`
	Lang        string    `json:"lang"`
	WordCount   int       `json:"word_count"`
	GeneratedAt time.Time `json:"generated_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewGuide creates a new Guide for the given card with the given content
// and model name. The word count is derived from the content.
// Returns an error if validation fails.
func NewGuide(cardID uuid.UUID, content, modelName, lang string) (*Guide, error) {
	now := time.Now().UTC()
	guide := &Guide{
		CardID:      cardID,
		Content:     content,
		ModelName:   modelName,
		Lang:        lang,
		WordCount:   len(strings.Fields(content)),
		GeneratedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if guide.Lang == "" {
		guide.Lang = "en"
	}

	if err := guide.Validate(); err != nil {
		return nil, err
	}

	return guide, nil
}

// Validate checks if the Guide has valid data.
// Returns an error if any field fails validation.
func (g *Guide) Validate() error {
	if g.CardID == uuid.Nil {
		return ErrGuideCardIDEmpty
	}

	if strings.TrimSpace(g.Content) == "" {
		return ErrGuideContentEmpty
	}

	if g.ModelName == "" {
		return ErrGuideModelEmpty
	}

	return nil
}
