package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGuide(t *testing.T) {
	t.Parallel()

	cardID := uuid.New()
	guide, err := NewGuide(cardID, "A deep dive into the card.", "gemini-2.0-flash", "")
	require.NoError(t, err)

	assert.Equal(t, cardID, guide.CardID)
	assert.Equal(t, 6, guide.WordCount)
	assert.Equal(t, "en", guide.Lang, "empty language defaults to en")
	assert.False(t, guide.GeneratedAt.IsZero())
}

func TestNewGuide_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cardID  uuid.UUID
		content string
		model   string
		wantErr error
	}{
		{"nil card ID", uuid.Nil, "content", "model", ErrGuideCardIDEmpty},
		{"empty content", uuid.New(), "", "model", ErrGuideContentEmpty},
		{"whitespace content", uuid.New(), "  \n\t ", "model", ErrGuideContentEmpty},
		{"empty model", uuid.New(), "content", "", ErrGuideModelEmpty},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewGuide(tt.cardID, tt.content, tt.model, "en")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewGuide_WordCount(t *testing.T) {
	t.Parallel()

	guide, err := NewGuide(uuid.New(), strings.Repeat("word ", 250), "model", "en")
	require.NoError(t, err)
	assert.Equal(t, 250, guide.WordCount)
}

func TestNewCard_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewCard(uuid.Nil, "Lightning Bolt")
	assert.ErrorIs(t, err, ErrCardIDEmpty)

	_, err = NewCard(uuid.New(), "")
	assert.ErrorIs(t, err, ErrCardNameEmpty)

	card, err := NewCard(uuid.New(), "Lightning Bolt")
	require.NoError(t, err)
	assert.Equal(t, "en", card.Lang)
}
