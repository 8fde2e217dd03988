package filter

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var dashVariants = strings.NewReplacer(
	"‐", "-", // hyphen
	"‑", "-", // non-breaking hyphen
	"‒", "-", // figure dash
	"–", "-", // en dash
	"—", "-", // em dash
	"―", "-", // horizontal bar
	"−", "-", // minus sign
)

// Normalize canonicalizes a label for value-filter comparison: lowercase,
// Unicode fold (diacritics stripped via NFD), quotes and brackets removed,
// dash variants unified, whitespace collapsed.
func Normalize(s string) string {
	s = dashVariants.Replace(s)
	s = norm.NFD.String(s)

	var b strings.Builder
	b.Grow(len(s))
	lastSpace := false
	for _, r := range s {
		switch {
		case unicode.Is(unicode.Mn, r):
			// combining mark from NFD decomposition
			continue
		case r == '"' || r == '\'' || r == '`' ||
			r == '“' || r == '”' || r == '‘' || r == '’' || r == '«' || r == '»' ||
			r == '(' || r == ')' || r == '[' || r == ']' || r == '{' || r == '}':
			continue
		case unicode.IsSpace(r):
			if !lastSpace && b.Len() > 0 {
				b.WriteRune(' ')
				lastSpace = true
			}
		default:
			b.WriteRune(unicode.ToLower(r))
			lastSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}
