package secret

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// FullTextMarker switches a query from prefix matching to full-text
// matching. Doubling it searches for a literal leading marker by prefix.
const FullTextMarker = '.'

// Filter returns the secrets matching query.
//
// By default a secret matches when its description starts with the query.
// A query starting with "." matches when the rest of the query occurs in
// the description, username, email or note. A query starting with ".."
// is a prefix search for descriptions beginning with ".". Matching is case
// insensitive.
//
// An empty query, or one that is only the marker, returns active itself,
// not a copy. Any other query returns a new slice, possibly empty. active
// is never modified.
func Filter(active []Secret, query string) []Secret {
	if query == "" {
		return active
	}

	// A Caser must not be shared between goroutines.
	fold := cases.Lower(language.Und)
	q := fold.String(query)
	fullText := false
	if q[0] == FullTextMarker {
		fullText = len(q) > 1 && q[1] != FullTextMarker
		q = q[1:]
	}
	if q == "" {
		return active
	}

	out := make([]Secret, 0)
	for _, s := range active {
		if matches(fold, s, q, fullText) {
			out = append(out, s)
		}
	}
	return out
}

func matches(fold cases.Caser, s Secret, q string, fullText bool) bool {
	if !fullText {
		return strings.HasPrefix(fold.String(s.Description), q)
	}
	return strings.Contains(fold.String(s.Description), q) ||
		strings.Contains(fold.String(s.Username), q) ||
		strings.Contains(fold.String(s.Email), q) ||
		strings.Contains(fold.String(s.Note), q)
}
