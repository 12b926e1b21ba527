package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Dictation filler and the most common English function words. They show up
// in nearly every note and only dilute scores.
var fillerWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "from": {}, "i": {}, "in": {}, "is": {},
	"it": {}, "of": {}, "on": {}, "or": {}, "so": {}, "that": {}, "the": {},
	"this": {}, "to": {}, "was": {}, "we": {}, "with": {}, "you": {},
	"uh": {}, "um": {}, "er": {}, "hmm": {}, "like": {}, "okay": {},
}

var folder = cases.Fold()

// stripMarks removes combining accents after canonical decomposition.
func stripMarks(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, value)
	if err != nil {
		return value
	}
	return out
}

// Terms splits text into case-folded, accent-free words. Filler words and
// single-rune fragments are dropped; digits are kept so "7am" or "2025"
// remain searchable.
func Terms(text string) []string {
	folded := stripMarks(folder.String(norm.NFKC.String(text)))
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, field := range fields {
		if len([]rune(field)) < 2 {
			continue
		}
		if _, skip := fillerWords[field]; skip {
			continue
		}
		out = append(out, field)
	}
	return out
}
