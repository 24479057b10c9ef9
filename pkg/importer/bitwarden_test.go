package importer

import (
	"strings"
	"testing"

	"github.com/secretkeep/secretkeep/pkg/secret"
)

func TestBitwardenParser_Source(t *testing.T) {
	p := &BitwardenParser{}
	if p.Source() != SourceBitwarden {
		t.Errorf("Source() = %q, want %q", p.Source(), SourceBitwarden)
	}
}

func TestBitwardenParser_Parse(t *testing.T) {
	tests := []struct {
		name         string
		jsonData     string
		opts         ParseOptions
		wantSecrets  int
		wantSkipped  int
		wantWarnings int
		wantError    bool
		checkFirst   func(t *testing.T, s secret.Secret)
	}{
		{
			name: "login with folder, URIs and custom fields",
			jsonData: `{
  "folders": [{"id": "f1", "name": "Work"}],
  "items": [{
    "type": 1, "name": "GitHub", "notes": "main account", "folderId": "f1",
    "login": {
      "username": "johndoe", "password": "secret123", "totp": "JBSWY3DPEHPK3PXP",
      "uris": [{"uri": "https://github.com"}, {"uri": "https://gist.github.com"}]
    },
    "fields": [{"name": "API Key", "value": "ghp_x", "type": 1}, {"name": "2FA", "value": "", "type": 2}]
  }]
}`,
			opts:        ParseOptions{FolderPrefix: true},
			wantSecrets: 1,
			checkFirst: func(t *testing.T, s secret.Secret) {
				if s.Description != "Work/GitHub" {
					t.Errorf("Description = %q", s.Description)
				}
				if s.Username != "johndoe" || s.Password != "secret123" {
					t.Errorf("credentials = %q/%q", s.Username, s.Password)
				}
				want := "main account\n\n" +
					"URL: https://github.com\nURL 2: https://gist.github.com\nTOTP: JBSWY3DPEHPK3PXP\n" +
					"API Key: ghp_x\n2FA: false\nFolder: Work"
				if s.Note != want {
					t.Errorf("Note = %q, want %q", s.Note, want)
				}
			},
		},
		{
			name:        "secure note",
			jsonData:    `{"items": [{"type": 2, "name": "Recovery codes", "notes": "1111 2222"}]}`,
			wantSecrets: 1,
			checkFirst: func(t *testing.T, s secret.Secret) {
				if s.Note != "1111 2222" || s.Password != "" {
					t.Errorf("got %+v", s)
				}
			},
		},
		{
			name: "card",
			jsonData: `{"items": [{"type": 3, "name": "Visa", "card": {
  "cardholderName": "John Doe", "number": "4111111111111111", "expMonth": "12",
  "expYear": "2030", "code": "123", "brand": "Visa"}}]}`,
			wantSecrets: 1,
			checkFirst: func(t *testing.T, s secret.Secret) {
				if s.Username != "John Doe" || s.Password != "4111111111111111" {
					t.Errorf("got %+v", s)
				}
				if s.Note != "Brand: Visa\nExpires: 12/2030\nSecurity code: 123" {
					t.Errorf("Note = %q", s.Note)
				}
			},
		},
		{
			name: "identity",
			jsonData: `{"items": [{"type": 4, "name": "Me", "identity": {
  "title": "Mr", "firstName": "John", "lastName": "Doe", "email": "john@example.com",
  "phone": "555-1234", "city": "Springfield"}}]}`,
			wantSecrets: 1,
			checkFirst: func(t *testing.T, s secret.Secret) {
				if s.Email != "john@example.com" {
					t.Errorf("Email = %q", s.Email)
				}
				for _, want := range []string{"Name: Mr John Doe", "Phone: 555-1234", "City: Springfield"} {
					if !strings.Contains(s.Note, want) {
						t.Errorf("Note %q missing %q", s.Note, want)
					}
				}
			},
		},
		{
			name:         "unsupported type",
			jsonData:     `{"items": [{"type": 9, "name": "Passkey"}, {"type": 2, "name": "N", "notes": "x"}]}`,
			wantSecrets:  1,
			wantWarnings: 1,
		},
		{
			name:        "empty login skipped",
			jsonData:    `{"items": [{"type": 1, "name": "Empty", "login": {"uris": [{"uri": "https://a.com"}]}}]}`,
			wantSkipped: 1,
		},
		{
			name:        "login without login object",
			jsonData:    `{"items": [{"type": 1, "name": "Nothing"}]}`,
			wantSkipped: 1,
		},
		{
			name:        "unnamed login falls back to hostname",
			jsonData:    `{"items": [{"type": 1, "name": "", "login": {"password": "p", "uris": [{"uri": "https://www.example.com/x"}]}}]}`,
			wantSecrets: 1,
			checkFirst: func(t *testing.T, s secret.Secret) {
				if s.Description != "example.com" {
					t.Errorf("Description = %q", s.Description)
				}
			},
		},
		{
			name:      "encrypted export",
			jsonData:  `{"encrypted": true, "items": []}`,
			wantError: true,
		},
		{
			name:      "invalid JSON",
			jsonData:  `{"items": [`,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &BitwardenParser{}
			result, err := p.Parse([]byte(tt.jsonData), tt.opts)
			if tt.wantError {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if len(result.Secrets) != tt.wantSecrets {
				t.Errorf("got %d secrets, want %d", len(result.Secrets), tt.wantSecrets)
			}
			if len(result.Skipped) != tt.wantSkipped {
				t.Errorf("got %d skipped, want %d", len(result.Skipped), tt.wantSkipped)
			}
			if len(result.Warnings) != tt.wantWarnings {
				t.Errorf("got %d warnings, want %d: %v", len(result.Warnings), tt.wantWarnings, result.Warnings)
			}
			if tt.checkFirst != nil && len(result.Secrets) > 0 {
				tt.checkFirst(t, result.Secrets[0])
			}
		})
	}
}
