// Package textutil provides the canonical text normalization used for alias
// matching. Narrative text, registry labels and declared aliases all pass
// through the same pipeline so comparisons happen in a single key space.
package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var diacriticRemover = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// StripDiacritics removes combining diacritical marks and lower-cases the
// input ("Alérgica" → "alergica").
func StripDiacritics(s string) string {
	out, _, err := transform.String(diacriticRemover, s)
	if err != nil {
		// The transform chain cannot fail on valid UTF-8; fall back to the
		// untouched input for anything else.
		out = s
	}
	return strings.ToLower(out)
}

// NormalizeStr reduces a string to the canonical alias key space: diacritics
// stripped, lower-cased, every non letter/digit rune turned into a space,
// whitespace runs collapsed, edges trimmed. The result contains only letters
// and digits separated by single spaces. Idempotent.
func NormalizeStr(s string) string {
	stripped := StripDiacritics(s)

	var b strings.Builder
	b.Grow(len(stripped))
	lastSpace := true
	for _, r := range stripped {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// Tokens splits an already-normalized string into its set of words.
func Tokens(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
