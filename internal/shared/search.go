package shared

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// NormalizeSearch folds case, strips diacritics and collapses whitespace so that
// "Café  Verde" and "cafe verde" compare equal.
func NormalizeSearch(parts ...string) string {
	joined := strings.Join(parts, " ")
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, joined)
	if err != nil {
		stripped = joined
	}
	return strings.Join(strings.Fields(folder.String(stripped)), " ")
}
