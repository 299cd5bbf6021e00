// Package normalize implements the single phrase normal form shared by the
// trie, the aggregator and the filtered-phrase set. Two phrases are equal
// iff Phrase(a) == Phrase(b).
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// MinLen and HardMaxLen bound a valid phrase before length-specific config
// (max_phrase_len) narrows the upper bound further.
const (
	MinLen        = 2
	HardMaxLen    = 100
	DefaultMaxLen = HardMaxLen
)

var foldCaser = cases.Fold()

// Phrase normalizes raw input into the form used as an index key: a trim
// of leading and trailing whitespace, then NFKC normalization and simple
// case fold. This runs before
// every insert, increment, lookup and filter check so that two phrases
// are byte-equal iff their normal forms match.
func Phrase(raw string) string {
	trimmed := strings.TrimSpace(raw)
	folded := foldCaser.String(norm.NFKC.String(trimmed))
	return folded
}

// Prefix normalizes a lookup prefix: NFKC, simple case fold, and a trim
// of leading whitespace only. Trailing whitespace is significant in a
// prefix — "sea " completes to "sea turtle" while "sea" also completes to
// "search" — so it is preserved, unlike Phrase's full trim.
func Prefix(raw string) string {
	folded := foldCaser.String(norm.NFKC.String(raw))
	return strings.TrimLeft(folded, " \t\n\r")
}

// Valid reports whether a normalized phrase satisfies the length bound.
// maxLen is the configured max_phrase_len (defaults to HardMaxLen).
func Valid(normalized string, maxLen int) bool {
	if maxLen <= 0 || maxLen > HardMaxLen {
		maxLen = HardMaxLen
	}
	n := len([]rune(normalized))
	return n >= MinLen && n <= maxLen
}

// Printable reports whether every rune in s is a printable character —
// phrases are defined over printable code points only, so control
// characters are the sole rejection; accented scripts, CJK and emoji all pass.
func Printable(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}
