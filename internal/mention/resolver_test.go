package mention

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedUUID(n byte) uuid.UUID {
	var b [16]byte
	b[15] = n
	b[6] = 0x40 // version 4
	b[8] = 0x80 // variant
	return uuid.UUID(b)
}

func testIndex() *Index {
	return NewIndex([]Entry{
		{CardID: fixedUUID(1), Name: "Fire Bolt", ImageURL: "https://img.example/fire-bolt.jpg"},
		{CardID: fixedUUID(2), Name: "Bolt"},
		{CardID: fixedUUID(3), Name: "Counterspell"},
		{CardID: fixedUUID(4), Name: "Séance"},
	})
}

func TestResolve_WrapsMention(t *testing.T) {
	t.Parallel()

	ix := testIndex()
	got := ix.Resolve("Cast Counterspell in response.", uuid.Nil)

	want := fmt.Sprintf(
		`Cast <card-ref id="%s">Counterspell</card-ref> in response.`,
		fixedUUID(3))
	assert.Equal(t, want, got)
}

func TestResolve_PreservesOriginalCasing(t *testing.T) {
	t.Parallel()

	ix := testIndex()
	got := ix.Resolve("COUNTERSPELL wins counter wars.", uuid.Nil)
	assert.Contains(t, got, ">COUNTERSPELL</card-ref>")
}

func TestResolve_LongestNameWins(t *testing.T) {
	t.Parallel()

	// "Fire Bolt" contains "Bolt"; the longer name must claim the span
	// and the shorter must not match inside it.
	ix := testIndex()
	got := ix.Resolve("Fire Bolt deals damage.", uuid.Nil)

	assert.Contains(t, got, fmt.Sprintf(`<card-ref id="%s"`, fixedUUID(1)))
	assert.NotContains(t, got, fixedUUID(2).String())
	assert.Contains(t, got, ">Fire Bolt</card-ref>")
}

func TestResolve_ShorterNameStillMatchesElsewhere(t *testing.T) {
	t.Parallel()

	ix := testIndex()
	got := ix.Resolve("Fire Bolt beats a plain Bolt.", uuid.Nil)

	assert.Contains(t, got, fmt.Sprintf(
		`<card-ref id="%s" img="https://img.example/fire-bolt.jpg">Fire Bolt</card-ref>`, fixedUUID(1)))
	assert.Contains(t, got, fmt.Sprintf(`<card-ref id="%s">Bolt</card-ref>`, fixedUUID(2)))
}

func TestResolve_WordBoundaries(t *testing.T) {
	t.Parallel()

	ix := testIndex()

	// Embedded in a longer word: no match.
	assert.Equal(t, "Boltage is not a card.", ix.Resolve("Boltage is not a card.", uuid.Nil))
	assert.Equal(t, "ThunderBolt.", ix.Resolve("ThunderBolt.", uuid.Nil))

	// Punctuation delimits.
	got := ix.Resolve("Bolt, then pass.", uuid.Nil)
	assert.Contains(t, got, ">Bolt</card-ref>, then pass.")
}

func TestResolve_SelfExclusion(t *testing.T) {
	t.Parallel()

	ix := testIndex()
	text := "Counterspell compares well to Bolt."

	got := ix.Resolve(text, fixedUUID(3))
	assert.NotContains(t, got, fixedUUID(3).String(), "a guide must not link its own card")
	assert.Contains(t, got, fmt.Sprintf(`<card-ref id="%s">Bolt</card-ref>`, fixedUUID(2)))
}

func TestResolve_Idempotent(t *testing.T) {
	t.Parallel()

	ix := testIndex()
	text := "Fire Bolt and Counterspell and Bolt, with Séance too."

	once := ix.Resolve(text, uuid.Nil)
	twice := ix.Resolve(once, uuid.Nil)
	assert.Equal(t, once, twice, "resolving resolved text must be a no-op")
}

func TestResolve_Deterministic(t *testing.T) {
	t.Parallel()

	// Same catalog in a different entry order must produce identical
	// output.
	entries := []Entry{
		{CardID: fixedUUID(1), Name: "Fire Bolt"},
		{CardID: fixedUUID(2), Name: "Bolt"},
		{CardID: fixedUUID(3), Name: "Counterspell"},
	}
	reversed := []Entry{entries[2], entries[1], entries[0]}

	text := "Fire Bolt, Bolt, Counterspell."
	assert.Equal(t,
		NewIndex(entries).Resolve(text, uuid.Nil),
		NewIndex(reversed).Resolve(text, uuid.Nil))
}

func TestResolve_ProtectsExistingTags(t *testing.T) {
	t.Parallel()

	ix := testIndex()

	// A name inside markup attributes must not be rewritten.
	text := `<img alt="Bolt"> then Bolt resolves.`
	got := ix.Resolve(text, uuid.Nil)
	assert.Contains(t, got, `<img alt="Bolt">`)
	assert.Contains(t, got, fmt.Sprintf(`<card-ref id="%s">Bolt</card-ref> resolves.`, fixedUUID(2)))
}

func TestResolve_ScansPastExistingElements(t *testing.T) {
	t.Parallel()

	ix := testIndex()

	// A pre-linked element is protected as a whole, label included, while
	// names after it still resolve.
	text := fmt.Sprintf(
		`<card-ref id="%s">Bolt</card-ref> trades with Counterspell.`, fixedUUID(2))
	got := ix.Resolve(text, uuid.Nil)

	assert.Equal(t, 1, strings.Count(got, fixedUUID(2).String()),
		"the existing element's label must not be re-linked")
	assert.Contains(t, got, fmt.Sprintf(`<card-ref id="%s">Counterspell</card-ref>`, fixedUUID(3)))
}

func TestResolve_UnterminatedElementProtectsToEnd(t *testing.T) {
	t.Parallel()

	ix := testIndex()
	text := fmt.Sprintf(`See <card-ref id="%s">Bolt and Counterspell`, fixedUUID(2))

	got := ix.Resolve(text, uuid.Nil)
	assert.Equal(t, text, got, "a dangling element protects the rest of the text")
}

func TestResolve_UnwrapsDoubleBrackets(t *testing.T) {
	t.Parallel()

	ix := testIndex()
	got := ix.Resolve("Play [[Counterspell]] here.", uuid.Nil)

	assert.NotContains(t, got, "[[")
	assert.Contains(t, got, fmt.Sprintf(`<card-ref id="%s">Counterspell</card-ref>`, fixedUUID(3)))
}

func TestResolve_CaseInsensitiveDiacritics(t *testing.T) {
	t.Parallel()

	ix := testIndex()
	got := ix.Resolve("A séance revealed nothing.", uuid.Nil)
	assert.Contains(t, got, fmt.Sprintf(`<card-ref id="%s">séance</card-ref>`, fixedUUID(4)))
}

func TestResolve_IncludesImageRef(t *testing.T) {
	t.Parallel()

	ix := testIndex()
	got := ix.Resolve("Fire Bolt.", uuid.Nil)
	assert.Contains(t, got, `img="https://img.example/fire-bolt.jpg"`)
}

func TestFindMentions(t *testing.T) {
	t.Parallel()

	ix := testIndex()
	text := "Bolt, then Counterspell, then Bolt again."

	mentions := ix.FindMentions(text, uuid.Nil)
	require.Len(t, mentions, 2, "repeat mentions collapse to one entry")
	assert.Equal(t, fixedUUID(2), mentions[0].CardID, "ordered by first occurrence")
	assert.Equal(t, fixedUUID(3), mentions[1].CardID)
}

func TestFindMentions_SelfExcluded(t *testing.T) {
	t.Parallel()

	ix := testIndex()
	mentions := ix.FindMentions("Counterspell and Bolt.", fixedUUID(3))
	require.Len(t, mentions, 1)
	assert.Equal(t, fixedUUID(2), mentions[0].CardID)
}

func TestFindMentions_DoesNotModifyText(t *testing.T) {
	t.Parallel()

	ix := testIndex()
	text := "Bolt."
	_ = ix.FindMentions(text, uuid.Nil)
	assert.Equal(t, "Bolt.", text)
}
