package quality

import (
	"strings"
	"unicode"
)

// words splits text into lowercase runs of letters and digits.
func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// hasTerm reports whether ws contains term as consecutive whole words. The last word of
// the term may carry a plural "s" or "es"; a trailing "*" makes it a prefix instead.
func hasTerm(ws []string, term string) bool {
	prefix := strings.HasSuffix(term, "*")
	parts := words(strings.TrimSuffix(term, "*"))
	if len(parts) == 0 {
		return false
	}
	last := len(parts) - 1

next:
	for i := 0; i+len(parts) <= len(ws); i++ {
		for j, p := range parts {
			w := ws[i+j]
			if j < last {
				if w != p {
					continue next
				}
				continue
			}
			if prefix && !strings.HasPrefix(w, p) {
				continue next
			}
			if !prefix && w != p && w != p+"s" && w != p+"es" {
				continue next
			}
		}
		return true
	}
	return false
}

// firstTerm returns the first term found in any of texts, or "".
func firstTerm(texts []string, terms []string) string {
	split := make([][]string, len(texts))
	for i, t := range texts {
		split[i] = words(t)
	}
	for _, term := range terms {
		for _, ws := range split {
			if hasTerm(ws, term) {
				return term
			}
		}
	}
	return ""
}
