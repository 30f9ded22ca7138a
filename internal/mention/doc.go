// Package mention implements dictionary-driven cross-referencing of card
// names inside generated guide text. An Index is a rebuildable snapshot of
// the catalog's names; resolution is a pure function of (text, index,
// self-id) with no I/O, producing byte-identical output on identical input.
//
// Matching rules: candidate names are tried longest-first so a multi-word
// name always wins over a shorter name it contains; occurrences must be
// case-insensitive whole words (no adjacent letter or digit); spans already
// inside markup or inside a previously inserted reference are never
// touched; the subject's own name is never linked.
package mention
