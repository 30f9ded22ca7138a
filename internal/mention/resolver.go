package mention

import (
	"html"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// Cross-reference element emitted around each detected mention. The
// rendering collaborator turns these into whatever presentation it wants;
// the core never emits anchors or templates.
const (
	refOpen  = "<card-ref"
	refClose = "</card-ref>"
)

// doubleBracketRe matches [[Name]] artifacts that generation backends
// sometimes emit despite prompt instructions. They are unwrapped to plain
// text before scanning so the name inside gets linked normally.
var doubleBracketRe = regexp.MustCompile(`\[\[([^\[\]]+)\]\]`)

// span is a half-open rune-offset range [start, end).
type span struct {
	start, end int
}

// replacement records one mention detected during a scan.
type replacement struct {
	span
	entry Entry
	label string
}

// Resolve returns the text with every detected mention wrapped in a
// <card-ref> element carrying the matched card's ID and image reference.
// The original casing of the matched text is preserved as the visible
// label. The card identified by selfID is never linked. Running Resolve
// on its own output is a no-op: inserted elements are protected spans.
func (ix *Index) Resolve(text string, selfID uuid.UUID) string {
	runes, repls := ix.scan(text, selfID)

	var b strings.Builder
	b.Grow(len(text) + len(repls)*64)

	pos := 0
	for _, r := range repls {
		b.WriteString(string(runes[pos:r.start]))
		b.WriteString(refOpen)
		b.WriteString(` id="`)
		b.WriteString(r.entry.CardID.String())
		b.WriteString(`"`)
		if r.entry.ImageURL != "" {
			b.WriteString(` img="`)
			b.WriteString(html.EscapeString(r.entry.ImageURL))
			b.WriteString(`"`)
		}
		b.WriteString(">")
		b.WriteString(r.label)
		b.WriteString(refClose)
		pos = r.end
	}
	b.WriteString(string(runes[pos:]))

	return b.String()
}

// FindMentions returns the distinct cards mentioned in the text, ordered
// by first occurrence. It applies the same matching rules as Resolve
// without rewriting anything.
func (ix *Index) FindMentions(text string, selfID uuid.UUID) []Entry {
	_, repls := ix.scan(text, selfID)

	seen := make(map[uuid.UUID]bool, len(repls))
	mentions := make([]Entry, 0, len(repls))
	for _, r := range repls {
		if seen[r.entry.CardID] {
			continue
		}
		seen[r.entry.CardID] = true
		mentions = append(mentions, r.entry)
	}

	return mentions
}

// scan runs the longest-first candidate scan and returns the working rune
// slice (double brackets unwrapped) plus the detected replacements in
// text order. Each accepted match immediately becomes a protected span so
// no shorter candidate can later match inside it.
func (ix *Index) scan(text string, selfID uuid.UUID) ([]rune, []replacement) {
	text = doubleBracketRe.ReplaceAllString(text, "$1")

	rs := []rune(text)
	folded := make([]rune, len(rs))
	for i, r := range rs {
		folded[i] = unicode.ToLower(r)
	}

	protected := protectedSpans(rs)

	var repls []replacement
	for _, cand := range ix.candidates {
		if cand.entry.CardID == selfID {
			continue
		}
		n := len(cand.folded)
		if n == 0 {
			continue
		}

		for i := 0; i+n <= len(rs); {
			if !runesEqual(folded[i:i+n], cand.folded) ||
				!wordBoundary(rs, i, i+n) ||
				overlapsAny(protected, i, i+n) {
				i++
				continue
			}

			repls = append(repls, replacement{
				span:  span{start: i, end: i + n},
				entry: cand.entry,
				label: string(rs[i : i+n]),
			})
			protected = insertSpan(protected, span{start: i, end: i + n})
			i += n
		}
	}

	sort.Slice(repls, func(i, j int) bool {
		return repls[i].start < repls[j].start
	})

	return rs, repls
}

// protectedSpans locates the ranges the scan must not touch: whole
// <card-ref>...</card-ref> elements including their labels, and any other
// <...> markup tag. An unterminated tag or element protects through the
// end of the text.
func protectedSpans(rs []rune) []span {
	var spans []span

	openRef := []rune(refOpen)
	closeRef := []rune(refClose)

	for i := 0; i < len(rs); {
		if rs[i] != '<' {
			i++
			continue
		}

		if hasPrefixFold(rs[i:], openRef) {
			end := indexRunes(rs[i:], closeRef)
			if end < 0 {
				spans = append(spans, span{start: i, end: len(rs)})
				break
			}
			spans = append(spans, span{start: i, end: i + end + len(closeRef)})
			i += end + len(closeRef)
			continue
		}

		// Generic tag: protect through the closing '>'.
		end := i + 1
		for end < len(rs) && rs[end] != '>' {
			end++
		}
		if end < len(rs) {
			end++
		}
		spans = append(spans, span{start: i, end: end})
		i = end
	}

	return spans
}

// wordBoundary reports whether the match at [start, end) is delimited:
// the adjacent runes on both sides must not be letters or digits.
func wordBoundary(rs []rune, start, end int) bool {
	if start > 0 && isWordRune(rs[start-1]) {
		return false
	}
	if end < len(rs) && isWordRune(rs[end]) {
		return false
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// overlapsAny reports whether [start, end) intersects any protected span.
// Spans are kept sorted by start.
func overlapsAny(spans []span, start, end int) bool {
	i := sort.Search(len(spans), func(i int) bool {
		return spans[i].end > start
	})
	return i < len(spans) && spans[i].start < end
}

// insertSpan adds a span keeping the slice sorted by start.
func insertSpan(spans []span, s span) []span {
	i := sort.Search(len(spans), func(i int) bool {
		return spans[i].start >= s.start
	})
	spans = append(spans, span{})
	copy(spans[i+1:], spans[i:])
	spans[i] = s
	return spans
}

// indexRunes returns the rune offset of the first occurrence of needle
// in rs, or -1 when absent.
func indexRunes(rs, needle []rune) int {
	for i := 0; i+len(needle) <= len(rs); i++ {
		if runesEqual(rs[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}

func runesEqual(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// hasPrefixFold reports whether rs begins with prefix under rune-wise
// lower-case folding.
func hasPrefixFold(rs, prefix []rune) bool {
	if len(rs) < len(prefix) {
		return false
	}
	for i, p := range prefix {
		if unicode.ToLower(rs[i]) != p {
			return false
		}
	}
	return true
}
