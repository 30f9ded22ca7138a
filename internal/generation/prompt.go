package generation

import (
	"fmt"
	"strings"
)

// guideSections are the section headings every guide prompt requests, in
// order. Keeping them in one place keeps prompts stable across backends.
var guideSections = []string{
	"TL;DR summary (2-3 sentences max)",
	"Detailed card mechanics and interactions",
	"Strategic uses, combos, and synergies",
	"Deckbuilding roles and archetypes",
	"Format viability and competitive context",
	"Rules interactions and technical notes",
	"Art, flavor, and historical context",
	"Key points summary",
}

// BuildPrompt renders the analysis prompt for a guide request. Related
// cards are requested by exact name in plain text: the mention resolver
// links them at read time, so the model is explicitly told not to add
// bracket or link markup of its own.
func BuildPrompt(req GuideRequest) string {
	card := req.Card

	var b strings.Builder
	fmt.Fprintf(&b,
		"Write a comprehensive, in-depth analysis guide for the Magic: The Gathering card %q.\n\n", card.Name)

	b.WriteString("Include:\n")
	for _, section := range guideSections {
		b.WriteString("- ")
		b.WriteString(section)
		b.WriteString("\n")
	}

	b.WriteString("\nUse natural paragraphs and markdown headers. Do not use bullet points in the body. ")
	b.WriteString("When you reference other cards, use their exact printed names in plain text, ")
	b.WriteString("with no brackets, links, or other markup around them. ")
	b.WriteString("Do not mention yourself or the analysis process.\n")

	if req.MinWords > 0 {
		fmt.Fprintf(&b, "Write at least %d words.\n", req.MinWords)
	}
	if lang := req.Language; lang != "" && lang != "en" {
		fmt.Fprintf(&b, "Write the entire guide in the language with code %q.\n", lang)
	}

	b.WriteString("\nCard details:\n")
	fmt.Fprintf(&b, "Name: %s\n", card.Name)
	writeDetail(&b, "Mana Cost", card.ManaCost)
	writeDetail(&b, "Type", card.TypeLine)
	writeDetail(&b, "Text", card.OracleText)
	if card.Power != "" || card.Toughness != "" {
		fmt.Fprintf(&b, "P/T: %s/%s\n", card.Power, card.Toughness)
	}
	writeDetail(&b, "Set", card.SetName)
	writeDetail(&b, "Rarity", card.Rarity)
	writeDetail(&b, "Flavor", card.FlavorText)

	return b.String()
}

func writeDetail(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, value)
}
