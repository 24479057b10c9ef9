package main

import (
	"bufio"
	"strings"
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"30d", 30 * 24 * time.Hour, false},
		{"2w", 14 * 24 * time.Hour, false},
		{"1y", 365 * 24 * time.Hour, false},
		{"24h", 24 * time.Hour, false},
		{"90m", 90 * time.Minute, false},
		{"1h30m", 90 * time.Minute, false},
		{"d", 0, true},
		{"2.5d", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseDuration(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseDuration(%q) = %v, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseDuration(%q) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("parseDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func withStdin(t *testing.T, input string) {
	t.Helper()
	old := stdin
	stdin = bufio.NewReader(strings.NewReader(input))
	t.Cleanup(func() { stdin = old })
}

func TestReadLine(t *testing.T) {
	withStdin(t, "first\r\nsecond\nlast")

	for _, want := range []string{"first", "second", "last"} {
		got, err := readLine()
		if err != nil {
			t.Fatalf("readLine failed: %v", err)
		}
		if got != want {
			t.Errorf("readLine() = %q, want %q", got, want)
		}
	}
	if _, err := readLine(); err == nil {
		t.Error("expected error at end of input")
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"  yes  \n", true},
		{"n\n", false},
		{"\n", false},
		{"maybe\n", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			withStdin(t, tt.input)
			if got := confirm("Continue?"); got != tt.want {
				t.Errorf("confirm with %q = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestReadNewPassword(t *testing.T) {
	withStdin(t, "correct-horse-9\ncorrect-horse-9\n")
	pw, err := readNewPassword("Master password")
	if err != nil {
		t.Fatalf("readNewPassword failed: %v", err)
	}
	if string(pw) != "correct-horse-9" {
		t.Errorf("got %q", pw)
	}

	withStdin(t, "correct-horse-9\ncorrect-horse-8\n")
	if _, err := readNewPassword("Master password"); err == nil {
		t.Error("expected mismatch error")
	}
}
