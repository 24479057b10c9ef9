package main

import (
	"strings"
	"testing"

	"github.com/secretkeep/secretkeep/pkg/secret"
)

func TestWeakSecrets(t *testing.T) {
	active := []secret.Secret{
		{Description: "A", Password: "abc"},
		{Description: "B", Password: "Tr0ub4dor&3-horse-battery"},
		{Description: "C"},
		{Description: "D", Password: "1234"},
	}

	got := weakSecrets(active, 0)
	if len(got) != 2 || got[0].Description != "A" || got[1].Description != "D" {
		t.Errorf("weakSecrets = %v", got)
	}
	if got := weakSecrets(active, 1); len(got) != 1 {
		t.Errorf("limit 1 returned %d secrets", len(got))
	}
}

func TestScoreRating(t *testing.T) {
	tests := []struct {
		overall int
		want    string
	}{
		{100, "Excellent"},
		{90, "Excellent"},
		{75, "Good"},
		{50, "Fair"},
		{10, "Needs Attention"},
	}
	for _, tt := range tests {
		if got, _ := scoreRating(tt.overall); got != tt.want {
			t.Errorf("scoreRating(%d) = %q, want %q", tt.overall, got, tt.want)
		}
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		value  int
		filled int
	}{
		{0, 0},
		{25, 20},
		{10, 8},
		{-3, 0},
		{40, 20},
	}
	for _, tt := range tests {
		bar := progressBar(tt.value, 25)
		if got := strings.Count(bar, "█"); got != tt.filled {
			t.Errorf("progressBar(%d) filled %d, want %d", tt.value, got, tt.filled)
		}
		if got := strings.Count(bar, "█") + strings.Count(bar, "░"); got != 20 {
			t.Errorf("progressBar(%d) width %d", tt.value, got)
		}
	}
}

func TestSecretField(t *testing.T) {
	s := secret.Secret{Description: "Bank", Username: "alice", Password: "pw", Email: "a@b.c", Note: "n"}
	for field, want := range map[string]string{
		fieldPassword: "pw",
		fieldUsername: "alice",
		fieldEmail:    "a@b.c",
		fieldNote:     "n",
	} {
		got, err := secretField(s, field)
		if err != nil || got != want {
			t.Errorf("secretField(%q) = %q, %v", field, got, err)
		}
	}
	if _, err := secretField(s, "url"); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestDescriptionsWithPrefix(t *testing.T) {
	secrets := []secret.Secret{{Description: "Bank"}, {Description: "Work/GitHub"}, {Description: "work/notes"}}
	got := descriptionsWithPrefix(secrets, "WORK/")
	if len(got) != 2 {
		t.Errorf("descriptionsWithPrefix = %v", got)
	}
	if got := descriptionsWithPrefix(secrets, ""); len(got) != 3 {
		t.Errorf("empty prefix returned %v", got)
	}
}
