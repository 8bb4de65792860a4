package model

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxNormalizedLen = 100

// NormalizeDescription lowercases, strips accents and non-alphanumerics,
// collapses whitespace, and truncates to 100 runes. Two descriptions that
// normalize the same are the same line item.
func NormalizeDescription(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	lastSpace := true
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteByte(' ')
			lastSpace = true
		}
	}

	out := strings.TrimSpace(b.String())
	if rs := []rune(out); len(rs) > maxNormalizedLen {
		out = string(rs[:maxNormalizedLen])
	}
	return out
}

// ItemKey derives the identity of a line item within its work package.
// Merging and consensus both use it, so an item re-reported with minor
// wording differences resolves to the same key everywhere.
func ItemKey(packageID, description string) string {
	return packageID + ":" + NormalizeDescription(description)
}
