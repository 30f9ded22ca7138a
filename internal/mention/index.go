package mention

import (
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Entry is one linkable card in the index.
type Entry struct {
	CardID   uuid.UUID
	Name     string
	ImageURL string
}

// candidate pairs an entry with the precomputed rune forms used during
// scanning.
type candidate struct {
	entry Entry
	// folded is the display name lower-cased rune by rune, matched
	// against the folded text.
	folded []rune
}

// Index is an immutable snapshot of the catalog's linkable names. It is
// rebuilt whenever the catalog changes and shared read-only between
// resolutions, so it carries no locks.
type Index struct {
	byNorm     map[string]Entry
	candidates []candidate
}

// Normalize reduces a card name to its index key: Unicode NFD, combining
// marks stripped, NFC, lower-cased, interior whitespace collapsed to
// single spaces. Two names normalizing to the same key are treated as the
// same entity.
func Normalize(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, name)
	if err != nil {
		stripped = name
	}
	return strings.Join(strings.Fields(strings.ToLower(stripped)), " ")
}

// NewIndex builds an Index from the given entries. Entries whose names
// normalize to an already-seen key are dropped (duplicate suppression is a
// build-time concern, not the resolver's). Candidates are ordered longest
// name first, ties broken by normalized name, giving the scan a total
// order independent of input order.
func NewIndex(entries []Entry) *Index {
	ix := &Index{
		byNorm: make(map[string]Entry, len(entries)),
	}

	type keyed struct {
		norm string
		cand candidate
	}
	kept := make([]keyed, 0, len(entries))

	for _, e := range entries {
		key := Normalize(e.Name)
		if key == "" {
			continue
		}
		if _, dup := ix.byNorm[key]; dup {
			continue
		}
		ix.byNorm[key] = e
		kept = append(kept, keyed{
			norm: key,
			cand: candidate{entry: e, folded: foldRunes(e.Name)},
		})
	}

	sort.Slice(kept, func(i, j int) bool {
		li, lj := len(kept[i].cand.folded), len(kept[j].cand.folded)
		if li != lj {
			return li > lj
		}
		return kept[i].norm < kept[j].norm
	})

	ix.candidates = make([]candidate, len(kept))
	for i, k := range kept {
		ix.candidates[i] = k.cand
	}

	return ix
}

// Lookup returns the entry whose name normalizes to the same key as the
// given name.
func (ix *Index) Lookup(name string) (Entry, bool) {
	e, ok := ix.byNorm[Normalize(name)]
	return e, ok
}

// Len returns the number of distinct linkable names.
func (ix *Index) Len() int {
	return len(ix.candidates)
}

// foldRunes lower-cases a string rune by rune, preserving rune count so
// offsets into the folded form are offsets into the original.
func foldRunes(s string) []rune {
	rs := []rune(s)
	folded := make([]rune, len(rs))
	for i, r := range rs {
		folded[i] = unicode.ToLower(r)
	}
	return folded
}
