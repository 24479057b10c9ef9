package importer

import (
	"bytes"
	"errors"
	"testing"

	"github.com/secretkeep/secretkeep/pkg/secret"
)

func TestNativeParser_Parse(t *testing.T) {
	tests := []struct {
		name        string
		csvData     string
		wantSecrets int
		wantLine    int // >0 expects a *ParseError at that line
		checkFirst  func(t *testing.T, s secret.Secret)
	}{
		{
			name: "all columns",
			csvData: `description,username,password,email,notes
Bank,alice,hunter2,alice@example.com,"PIN in drawer
second line"`,
			wantSecrets: 1,
			checkFirst: func(t *testing.T, s secret.Secret) {
				want := secret.Secret{
					Description: "Bank", Username: "alice", Password: "hunter2",
					Email: "alice@example.com", Note: "PIN in drawer\nsecond line",
				}
				if !s.Same(want) {
					t.Errorf("got %+v, want %+v", s, want)
				}
			},
		},
		{
			name: "columns reordered and note alias",
			csvData: `Password,Description,Note
 pw ,Router,admin panel`,
			wantSecrets: 1,
			checkFirst: func(t *testing.T, s secret.Secret) {
				if s.Description != "Router" || s.Password != " pw " || s.Note != "admin panel" {
					t.Errorf("got %+v", s)
				}
			},
		},
		{
			name: "duplicates suffixed",
			csvData: `description,password
Mail,a
Mail,b`,
			wantSecrets: 2,
		},
		{
			name:     "missing description column",
			csvData:  "username,password\nu,p",
			wantLine: 1,
		},
		{
			name:     "empty file",
			csvData:  "",
			wantLine: 1,
		},
		{
			name: "wrong column count",
			csvData: `description,password
ok,1
bad,2,3`,
			wantLine: 3,
		},
		{
			name: "bare quote",
			csvData: `description,password
ok,1
b"ad,2`,
			wantLine: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &NativeParser{}
			result, err := p.Parse([]byte(tt.csvData), ParseOptions{})
			if tt.wantLine > 0 {
				var perr *ParseError
				if !errors.As(err, &perr) {
					t.Fatalf("Parse() error = %v, want *ParseError", err)
				}
				if perr.Line != tt.wantLine {
					t.Errorf("Line = %d, want %d", perr.Line, tt.wantLine)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if len(result.Secrets) != tt.wantSecrets {
				t.Fatalf("got %d secrets, want %d", len(result.Secrets), tt.wantSecrets)
			}
			if tt.checkFirst != nil {
				tt.checkFirst(t, result.Secrets[0])
			}
		})
	}
}

func TestNativeRoundTrip(t *testing.T) {
	in := []secret.Secret{
		{Description: "Bank", Username: "alice", Password: `p,"w`, Email: "a@example.com", Note: "multi\nline"},
		{Description: "Wifi", Password: "guest"},
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, in); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}

	result, err := (&NativeParser{}).Parse(buf.Bytes(), ParseOptions{})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(result.Secrets) != len(in) {
		t.Fatalf("got %d secrets, want %d", len(result.Secrets), len(in))
	}
	for i := range in {
		if !result.Secrets[i].Same(in[i]) {
			t.Errorf("secret %d = %+v, want %+v", i, result.Secrets[i], in[i])
		}
	}
}
