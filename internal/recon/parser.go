package recon

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// codePattern matches an alphanumeric invoice code followed by a 6-digit
// random code. The invoice code must start with a letter so a pair of plain
// number groups in the narration cannot masquerade as a code pair.
var codePattern = regexp.MustCompile(`(^|[^A-Z0-9])([A-Z][A-Z0-9]{2,31}) (\d{6})($|[^0-9])`)

var whitespacePattern = regexp.MustCompile(`\s+`)

// stripMarks removes combining marks after NFD decomposition. Banks forward
// narrations with inconsistent diacritics, so matching runs on the stripped
// form.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeNarration uppercases, strips diacritics and collapses whitespace.
func NormalizeNarration(s string) string {
	if out, _, err := transform.String(stripMarks, s); err == nil {
		s = out
	}
	s = strings.ToUpper(s)
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}

// ParseCodes extracts the (invoice code, random code) pair from a free-text
// narration. The boolean reports whether a pair was found.
func ParseCodes(narration string) (invoiceCode, randomCode string, ok bool) {
	normalized := NormalizeNarration(narration)
	m := codePattern.FindStringSubmatch(normalized)
	if m == nil {
		return "", "", false
	}
	return m[2], m[3], true
}
