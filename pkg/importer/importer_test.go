package importer

import (
	"errors"
	"strings"
	"testing"

	"github.com/secretkeep/secretkeep/pkg/secret"
	"github.com/secretkeep/secretkeep/pkg/vault"
)

func TestSanitizeDescription(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple name", "My Bank", "My Bank"},
		{"case preserved", "GitHub API", "GitHub API"},
		{"trimmed", "  Email  ", "Email"},
		{"whitespace runs collapsed", "Home \t  Wifi", "Home Wifi"},
		{"control characters", "line1\nline2\x00x", "line1 line2 x"},
		{"empty string", "", ""},
		{"only whitespace", " \t\n", ""},
		{"unicode normalization", "café", "café"},
		{"punctuation kept", "a@b.c #1 (old)", "a@b.c #1 (old)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeDescription(tt.input)
			if got != tt.want {
				t.Errorf("SanitizeDescription(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeDescription_Truncation(t *testing.T) {
	ascii := strings.Repeat("a", vault.MaxDescriptionLength+10)
	if got := SanitizeDescription(ascii); len(got) != vault.MaxDescriptionLength {
		t.Errorf("len = %d, want %d", len(got), vault.MaxDescriptionLength)
	}

	// 3-byte runes never divide the limit evenly.
	wide := strings.Repeat("€", vault.MaxDescriptionLength)
	got := SanitizeDescription(wide)
	if len(got) > vault.MaxDescriptionLength {
		t.Errorf("len = %d, exceeds %d", len(got), vault.MaxDescriptionLength)
	}
	if !strings.HasSuffix(got, "€") {
		t.Error("truncation split a rune")
	}
}

func TestDeduplicateDescriptions(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{"no duplicates", []string{"a", "b", "c"}, []string{"a", "b", "c"}},
		{"two duplicates", []string{"a", "a", "b"}, []string{"a", "a ##1", "b"}},
		{"three duplicates", []string{"a", "a", "a"}, []string{"a", "a ##1", "a ##2"}},
		{"case sensitive", []string{"Key", "key"}, []string{"Key", "key"}},
		{"suffix already taken", []string{"a", "a ##1", "a"}, []string{"a", "a ##1", "a ##2"}},
		{"empty slice", []string{}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secrets := make([]secret.Secret, len(tt.input))
			for i, d := range tt.input {
				secrets[i].Description = d
			}
			DeduplicateDescriptions(secrets)
			for i, s := range secrets {
				if s.Description != tt.want[i] {
					t.Errorf("index %d got %q, want %q", i, s.Description, tt.want[i])
				}
			}
		})
	}
}

func TestGenerateFallbackDescription(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		counter int
		want    string
	}{
		{"simple URL", "https://github.com", 1, "github.com"},
		{"URL with path", "https://github.com/user/repo", 1, "github.com"},
		{"URL with www", "https://www.example.com", 1, "example.com"},
		{"URL with port", "https://example.com:8080/path", 1, "example.com"},
		{"URL with credentials", "https://user:pw@example.com", 1, "example.com"},
		{"HTTP URL", "http://example.com", 1, "example.com"},
		{"empty URL", "", 5, "Imported item 5"},
		{"URL with only www", "https://www.", 3, "Imported item 3"},
		{"subdomain", "https://api.github.com", 1, "api.github.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateFallbackDescription(tt.url, tt.counter)
			if got != tt.want {
				t.Errorf("GenerateFallbackDescription(%q, %d) = %q, want %q", tt.url, tt.counter, got, tt.want)
			}
		})
	}
}

func TestDecodeHTMLEntities(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"ampersand", "&amp;", "&"},
		{"less than", "&lt;", "<"},
		{"greater than", "&gt;", ">"},
		{"double quote", "&quot;", "\""},
		{"single quote (numeric)", "&#39;", "'"},
		{"single quote (named)", "&apos;", "'"},
		{"mixed content", "Hello &amp; goodbye &lt;world&gt;", "Hello & goodbye <world>"},
		{"no entities", "plain text", "plain text"},
		{"empty string", "", ""},
		{"multiple same entities", "&amp;&amp;&amp;", "&&&"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeHTMLEntities(tt.input)
			if got != tt.want {
				t.Errorf("DecodeHTMLEntities(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsEmptyOrWhitespace(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"empty string", "", true},
		{"only spaces", "   ", true},
		{"only tabs", "\t\t\t", true},
		{"mixed whitespace", " \t \n ", true},
		{"has content", "hello", false},
		{"content with whitespace", "  hello  ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsEmptyOrWhitespace(tt.input)
			if got != tt.want {
				t.Errorf("IsEmptyOrWhitespace(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNoteBuilder(t *testing.T) {
	var n noteBuilder
	if n.String() != "" {
		t.Errorf("empty builder = %q", n.String())
	}

	n.body = "  main note \n"
	if n.String() != "main note" {
		t.Errorf("body only = %q", n.String())
	}

	n.addContext("URL", "https://example.com")
	n.add("TOTP", "  ")
	if n.data {
		t.Error("context and blank values must not count as data")
	}
	n.add("TOTP", "JBSW")
	if !n.data {
		t.Error("data not set")
	}
	want := "main note\n\nURL: https://example.com\nTOTP: JBSW"
	if n.String() != want {
		t.Errorf("String() = %q, want %q", n.String(), want)
	}
}

func TestCollector_SkipsInvalid(t *testing.T) {
	c := newCollector(ParseOptions{})
	c.add(&item{name: "empty"})
	c.add(&item{name: "huge", password: strings.Repeat("x", vault.MaxFieldLength+1)})
	c.add(&item{url: "https://www.example.com/login", username: "u"})
	c.add(&item{username: "nameless"})

	res := c.done()
	if len(res.Skipped) != 2 {
		t.Fatalf("Skipped = %v, want 2 items", res.Skipped)
	}
	if res.Skipped[0].Reason != "no useful data" {
		t.Errorf("Reason = %q", res.Skipped[0].Reason)
	}
	if !strings.Contains(res.Skipped[1].Reason, "field too long") {
		t.Errorf("Reason = %q", res.Skipped[1].Reason)
	}
	if len(res.Secrets) != 2 || res.Secrets[0].Description != "example.com" || res.Secrets[1].Description != "Imported item 2" {
		t.Errorf("Secrets = %+v", res.Secrets)
	}
}

func TestCollector_FolderPrefix(t *testing.T) {
	c := newCollector(ParseOptions{FolderPrefix: true})
	c.add(&item{name: "GitHub", folder: "Work", password: "p"})
	c.add(&item{name: "Mail", password: "p"})

	res := c.done()
	if res.Secrets[0].Description != "Work/GitHub" || res.Secrets[1].Description != "Mail" {
		t.Errorf("descriptions = %q, %q", res.Secrets[0].Description, res.Secrets[1].Description)
	}
}

func TestParseError(t *testing.T) {
	inner := errors.New("bad quote")
	err := error(&ParseError{Line: 7, Err: inner})
	if err.Error() != "importer: line 7: bad quote" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("ParseError must unwrap")
	}
}

func TestGetParser(t *testing.T) {
	tests := []struct {
		name      string
		source    Source
		wantError bool
	}{
		{"native", SourceNative, false},
		{"1Password", Source1Password, false},
		{"Bitwarden", SourceBitwarden, false},
		{"LastPass", SourceLastPass, false},
		{"unknown", Source("keepass"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := GetParser(tt.source)
			if tt.wantError {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("GetParser() error = %v", err)
			}
			if p.Source() != tt.source {
				t.Errorf("Source() = %q, want %q", p.Source(), tt.source)
			}
		})
	}
}

func TestValidSources(t *testing.T) {
	sources := ValidSources()
	if len(sources) != 4 {
		t.Fatalf("ValidSources() = %v", sources)
	}
	for _, s := range sources {
		if _, err := GetParser(Source(s)); err != nil {
			t.Errorf("GetParser(%q) error = %v", s, err)
		}
	}
}
