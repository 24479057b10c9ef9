package cli

import (
	"testing"
)

func TestExpandPattern(t *testing.T) {
	descriptions := []string{
		"Work/GitHub",
		"Work/GitLab",
		"Work/Cloud/AWS",
		"Bank",
		"Bank PIN",
	}

	tests := []struct {
		name     string
		pattern  string
		expected []string
		wantErr  bool
	}{
		{
			name:     "exact match",
			pattern:  "Bank",
			expected: []string{"Bank"},
		},
		{
			name:     "folder wildcard",
			pattern:  "Work/*",
			expected: []string{"Work/GitHub", "Work/GitLab"},
		},
		{
			name:     "star does not cross folders",
			pattern:  "Work/*/*",
			expected: []string{"Work/Cloud/AWS"},
		},
		{
			name:     "question mark",
			pattern:  "Work/Git?ab",
			expected: []string{"Work/GitLab"},
		},
		{
			name:     "prefix",
			pattern:  "Bank*",
			expected: []string{"Bank", "Bank PIN"},
		},
		{
			name:    "no match glob",
			pattern: "Home/*",
			wantErr: true,
		},
		{
			name:    "no match exact",
			pattern: "bank",
			wantErr: true,
		},
		{
			name:    "invalid pattern",
			pattern: "[invalid",
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := ExpandPattern(tc.pattern, descriptions)

			if tc.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}

			if len(result) != len(tc.expected) {
				t.Errorf("got %v, want %v", result, tc.expected)
				return
			}
			for i := range tc.expected {
				if result[i] != tc.expected[i] {
					t.Errorf("position %d: got %s, want %s", i, result[i], tc.expected[i])
				}
			}
		})
	}
}

func TestExpandPatterns(t *testing.T) {
	descriptions := []string{"a", "b", "c", "ab", "bc"}

	tests := []struct {
		name     string
		patterns []string
		expected []string
		wantErr  bool
	}{
		{
			name:     "single pattern",
			patterns: []string{"a"},
			expected: []string{"a"},
		},
		{
			name:     "multiple patterns",
			patterns: []string{"a", "b"},
			expected: []string{"a", "b"},
		},
		{
			name:     "overlapping patterns",
			patterns: []string{"a*", "ab"},
			expected: []string{"a", "ab"},
		},
		{
			name:     "glob pattern",
			patterns: []string{"*b"},
			expected: []string{"b", "ab"},
		},
		{
			name:     "one pattern fails",
			patterns: []string{"a", "zzz"},
			wantErr:  true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := ExpandPatterns(tc.patterns, descriptions)

			if tc.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}

			if len(result) != len(tc.expected) {
				t.Errorf("got %v, want %v", result, tc.expected)
			}
		})
	}
}

func TestMatchAny(t *testing.T) {
	patterns := []string{"[bad", "Work/*", "Bank"}

	tests := []struct {
		description string
		want        bool
		wantPattern string
	}{
		{"Work/GitHub", true, "Work/*"},
		{"Bank", true, "Bank"},
		{"Bank PIN", false, ""},
		{"Work/Cloud/AWS", false, ""},
	}

	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			got, p := MatchAny(patterns, tc.description)
			if got != tc.want || p != tc.wantPattern {
				t.Errorf("MatchAny(%q) = %v, %q; want %v, %q", tc.description, got, p, tc.want, tc.wantPattern)
			}
		})
	}
}

func TestHasGlob(t *testing.T) {
	if HasGlob("Bank") {
		t.Error("plain description reported as glob")
	}
	for _, p := range []string{"a*", "a?", "[ab]"} {
		if !HasGlob(p) {
			t.Errorf("HasGlob(%q) = false", p)
		}
	}
}
