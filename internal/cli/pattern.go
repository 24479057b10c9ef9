// Package cli provides shared utilities for CLI commands.
package cli

import (
	"fmt"
	"path"
	"strings"
)

// HasGlob reports whether pattern contains glob metacharacters.
func HasGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

// ValidatePattern checks pattern syntax.
func ValidatePattern(pattern string) error {
	if _, err := path.Match(pattern, ""); err != nil {
		return fmt.Errorf("invalid pattern '%s': %w", pattern, err)
	}
	return nil
}

// ExpandPattern expands a glob pattern against secret descriptions.
// If the pattern contains glob characters (*?[), it performs glob matching,
// where * does not cross a "/" folder separator. Otherwise, it performs
// exact matching.
func ExpandPattern(pattern string, descriptions []string) ([]string, error) {
	if err := ValidatePattern(pattern); err != nil {
		return nil, err
	}

	if !HasGlob(pattern) {
		for _, d := range descriptions {
			if d == pattern {
				return []string{pattern}, nil
			}
		}
		return nil, fmt.Errorf("secret '%s' not found", pattern)
	}

	var matches []string
	for _, d := range descriptions {
		if ok, _ := path.Match(pattern, d); ok {
			matches = append(matches, d)
		}
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("no secrets match pattern '%s'", pattern)
	}

	return matches, nil
}

// ExpandPatterns expands multiple glob patterns against descriptions.
// Returns unique matches preserving order of first match.
func ExpandPatterns(patterns []string, descriptions []string) ([]string, error) {
	seen := make(map[string]bool)
	var result []string

	for _, pattern := range patterns {
		matches, err := ExpandPattern(pattern, descriptions)
		if err != nil {
			return nil, err
		}
		for _, d := range matches {
			if !seen[d] {
				seen[d] = true
				result = append(result, d)
			}
		}
	}

	return result, nil
}

// MatchAny reports whether description matches any of patterns.
// Malformed patterns never match.
func MatchAny(patterns []string, description string) (matched bool, pattern string) {
	for _, p := range patterns {
		if ok, err := path.Match(p, description); err == nil && ok {
			return true, p
		}
	}
	return false, ""
}
