package generation

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/grimoire-api/internal/domain"
)

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	card, err := domain.NewCard(uuid.New(), "Lightning Bolt")
	require.NoError(t, err)
	card.ManaCost = "{R}"
	card.TypeLine = "Instant"
	card.OracleText = "Lightning Bolt deals 3 damage to any target."
	card.SetName = "Limited Edition Alpha"
	card.Rarity = "common"

	prompt := BuildPrompt(GuideRequest{Card: *card, Language: "en", MinWords: 1500})

	assert.Contains(t, prompt, `"Lightning Bolt"`)
	assert.Contains(t, prompt, "Name: Lightning Bolt")
	assert.Contains(t, prompt, "Mana Cost: {R}")
	assert.Contains(t, prompt, "Type: Instant")
	assert.Contains(t, prompt, "deals 3 damage to any target")
	assert.Contains(t, prompt, "Set: Limited Edition Alpha")
	assert.Contains(t, prompt, "at least 1500 words")

	// The resolver adds links at read time, so the model is told to keep
	// card names plain.
	assert.Contains(t, prompt, "plain text")

	for _, section := range guideSections {
		assert.Contains(t, prompt, section)
	}
}

func TestBuildPrompt_OmitsEmptyDetails(t *testing.T) {
	t.Parallel()

	card, err := domain.NewCard(uuid.New(), "Black Lotus")
	require.NoError(t, err)

	prompt := BuildPrompt(GuideRequest{Card: *card})

	assert.NotContains(t, prompt, "Mana Cost:")
	assert.NotContains(t, prompt, "P/T:")
	assert.NotContains(t, prompt, "Flavor:")
	assert.NotContains(t, prompt, "at least")
}

func TestBuildPrompt_NonEnglishLanguage(t *testing.T) {
	t.Parallel()

	card, err := domain.NewCard(uuid.New(), "Counterspell")
	require.NoError(t, err)

	prompt := BuildPrompt(GuideRequest{Card: *card, Language: "de"})
	assert.Contains(t, prompt, `language with code "de"`)

	english := BuildPrompt(GuideRequest{Card: *card, Language: "en"})
	assert.NotContains(t, english, "language with code")
}

func TestBuildPrompt_IncludesPowerToughness(t *testing.T) {
	t.Parallel()

	card, err := domain.NewCard(uuid.New(), "Tarmogoyf")
	require.NoError(t, err)
	card.Power = "*"
	card.Toughness = "1+*"

	prompt := BuildPrompt(GuideRequest{Card: *card})
	assert.Contains(t, prompt, "P/T: */1+*")
}
