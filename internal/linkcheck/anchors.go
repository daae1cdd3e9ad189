package linkcheck

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slug converts a heading text into the anchor form generated by common
// Markdown renderers: Unicode-normalized, combining marks stripped,
// lowercased, punctuation removed, spaces collapsed to hyphens.
func Slug(heading string) string {
	// Decompose and drop combining marks so "Résumé" slugs to "resume".
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	normalized, _, err := transform.String(t, heading)
	if err != nil {
		normalized = heading
	}

	var b strings.Builder
	lastHyphen := true // suppress leading hyphens
	for _, r := range strings.ToLower(normalized) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		case r == ' ' || r == '-' || r == '_':
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		default:
			// punctuation dropped
		}
	}

	return strings.TrimRight(b.String(), "-")
}
