// Package text provides verse text normalization and tokenization for TTS.
//
// Normalization produces the canonical spoken form of a line: the same
// verse printed with different decorations (verse numbers, dandas,
// punctuation, spacing, unicode composition) must map to the same string,
// because the normalized text is the cache identity and the synthesis
// payload.
package text

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	// Danda groups and any ornament digits attached to them, e.g.
	// "॥१२॥", "। 3 ।", "| 12", a bare "॥". Digits count as decoration
	// only in the company of a danda or pipe.
	dandaRegex = regexp.MustCompile(`[0-9०-९\s]*[।॥|][0-9०-९।॥|\s]*`)

	// Leading verse ordinals: "12. text", "१२) text".
	leadingOrdinalRegex = regexp.MustCompile(`^\s*[0-9०-९]+[.)]\s+`)

	// Trailing bracketed verse numbers: "text (12)", "text [१२]".
	trailingNumberRegex = regexp.MustCompile(`\s*[\[(][0-9०-९]+[\])]\s*$`)

	spaceRegex = regexp.MustCompile(`\s+`)
)

// Normalize returns the canonical form of a verse line. It applies NFC,
// strips verse-number decorations and pronunciation-neutral punctuation,
// and collapses whitespace. The result is deterministic and idempotent;
// empty or decoration-only input normalizes to "".
func Normalize(s string) string {
	s = norm.NFC.String(s)

	s = leadingOrdinalRegex.ReplaceAllString(s, "")
	s = trailingNumberRegex.ReplaceAllString(s, " ")
	s = dandaRegex.ReplaceAllString(s, " ")

	s = strings.Map(stripRune, s)

	s = spaceRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// stripRune maps pronunciation-neutral punctuation away: apostrophes are
// deleted outright so contractions stay one word, everything else
// punctuation-like becomes a space so joined words stay separated.
func stripRune(r rune) rune {
	switch r {
	case '\'', '’', '‘':
		return -1
	}
	if unicode.IsPunct(r) || unicode.IsSymbol(r) {
		return ' '
	}
	return r
}

// Tokenize splits a line into its spoken words: the whitespace-separated
// tokens of the normalized form. Empty input yields nil.
func Tokenize(s string) []string {
	fields := strings.Fields(Normalize(s))
	if len(fields) == 0 {
		return nil
	}
	return fields
}
