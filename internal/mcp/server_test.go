package mcp

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/secretkeep/secretkeep/pkg/audit"
	"github.com/secretkeep/secretkeep/pkg/cipher"
	"github.com/secretkeep/secretkeep/pkg/persist"
	"github.com/secretkeep/secretkeep/pkg/secret"
	"github.com/secretkeep/secretkeep/pkg/vault"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// testVault creates an unlocked vault with an audit log.
func testVault(t *testing.T) *vault.Vault {
	t.Helper()
	dir := t.TempDir()
	store, err := persist.NewFileStore(filepath.Join(dir, "vault"))
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	v := vault.New(store,
		vault.WithRounds(cipher.MinRounds),
		vault.WithClock(func() time.Time { return testNow }),
		vault.WithAudit(audit.NewLogger(filepath.Join(dir, "audit"))),
	)
	if err := v.Create(context.Background(), []byte("correct-horse-9")); err != nil {
		t.Fatalf("failed to create vault: %v", err)
	}
	t.Cleanup(v.Lock)
	return v
}

func addTestSecret(t *testing.T, v *vault.Vault, s secret.Secret) {
	t.Helper()
	if _, err := v.Add(context.Background(), s); err != nil {
		t.Fatalf("failed to add secret %q: %v", s.Description, err)
	}
}

func testServer(t *testing.T, policy *Policy) (*Server, *vault.Vault) {
	t.Helper()
	v := testVault(t)
	addTestSecret(t, v, secret.Secret{Description: "Bank", Username: "alice", Password: "hunter2-long", Note: "PIN in drawer"})
	addTestSecret(t, v, secret.Secret{Description: "Work/GitHub", Username: "alice-gh", Password: "ghp_abcdef", Email: "alice@example.com"})
	addTestSecret(t, v, secret.Secret{Description: "Work/Jira", Password: "jira"})

	s, err := NewServer(ServerOptions{Vault: v, Policy: policy})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return s, v
}

func descriptions(infos []SecretInfo) []string {
	out := make([]string, len(infos))
	for i, info := range infos {
		out[i] = info.Description
	}
	return out
}

func TestNewServer_RequiresUnlockedVault(t *testing.T) {
	if _, err := NewServer(ServerOptions{}); err == nil {
		t.Error("expected error without a vault")
	}

	v := testVault(t)
	v.Lock()
	_, err := NewServer(ServerOptions{Vault: v})
	if !errors.Is(err, vault.ErrVaultLocked) {
		t.Errorf("expected ErrVaultLocked, got %v", err)
	}
}

func TestHandleSecretList(t *testing.T) {
	s, _ := testServer(t, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		pattern string
		want    []string
		wantErr bool
	}{
		{name: "all", want: []string{"Bank", "Work/GitHub", "Work/Jira"}},
		{name: "folder glob", pattern: "Work/*", want: []string{"Work/GitHub", "Work/Jira"}},
		{name: "no match", pattern: "Home/*", want: []string{}},
		{name: "bad pattern", pattern: "[oops", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, out, err := s.handleSecretList(ctx, nil, SecretListInput{Pattern: tt.pattern})
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("handleSecretList failed: %v", err)
			}
			got := descriptions(out.Secrets)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHandleSecretList_Metadata(t *testing.T) {
	s, _ := testServer(t, nil)

	_, out, err := s.handleSecretList(context.Background(), nil, SecretListInput{Pattern: "Bank"})
	if err != nil {
		t.Fatalf("handleSecretList failed: %v", err)
	}
	if len(out.Secrets) != 1 {
		t.Fatalf("expected 1 secret, got %d", len(out.Secrets))
	}
	info := out.Secrets[0]
	if !info.HasUsername || !info.HasPassword || info.HasEmail || !info.HasNote {
		t.Errorf("unexpected flags: %+v", info)
	}
	if info.ModifiedAt != "2025-03-01T12:00:00Z" {
		t.Errorf("ModifiedAt = %q", info.ModifiedAt)
	}
	if info.LastAction != "created" {
		t.Errorf("LastAction = %q", info.LastAction)
	}
}

func TestHandleSecretSearch(t *testing.T) {
	s, _ := testServer(t, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		query   string
		want    []string
		wantErr bool
	}{
		{name: "prefix", query: "work/", want: []string{"Work/GitHub", "Work/Jira"}},
		{name: "full text", query: ".example.com", want: []string{"Work/GitHub"}},
		{name: "note text", query: ".drawer", want: []string{"Bank"}},
		{name: "empty", query: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, out, err := s.handleSecretSearch(ctx, nil, SecretSearchInput{Query: tt.query})
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("handleSecretSearch failed: %v", err)
			}
			got := descriptions(out.Secrets)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHandleSecretExists(t *testing.T) {
	s, _ := testServer(t, nil)
	ctx := context.Background()

	_, out, err := s.handleSecretExists(ctx, nil, SecretExistsInput{Description: "Work/GitHub"})
	if err != nil {
		t.Fatalf("handleSecretExists failed: %v", err)
	}
	if !out.Exists || out.Secret == nil || !out.Secret.HasEmail {
		t.Errorf("unexpected output: %+v", out)
	}

	_, out, err = s.handleSecretExists(ctx, nil, SecretExistsInput{Description: "work/github"})
	if err != nil {
		t.Fatalf("handleSecretExists failed: %v", err)
	}
	if out.Exists {
		t.Error("lookup must be exact")
	}

	if _, _, err := s.handleSecretExists(ctx, nil, SecretExistsInput{}); err == nil {
		t.Error("expected error for empty description")
	}
}

func TestHandleSecretGetMasked(t *testing.T) {
	s, _ := testServer(t, nil)
	ctx := context.Background()

	tests := []struct {
		name       string
		input      SecretGetMaskedInput
		wantMasked string
		wantLength int
		wantErr    bool
	}{
		{
			name:       "password by default",
			input:      SecretGetMaskedInput{Description: "Bank"},
			wantMasked: "********long",
			wantLength: 12,
		},
		{
			name:       "username",
			input:      SecretGetMaskedInput{Description: "Work/GitHub", Field: FieldUsername},
			wantMasked: "******gh",
			wantLength: 8,
		},
		{
			name:       "short password fully masked",
			input:      SecretGetMaskedInput{Description: "Work/Jira"},
			wantMasked: "****",
			wantLength: 4,
		},
		{
			name:    "unknown field",
			input:   SecretGetMaskedInput{Description: "Bank", Field: "note"},
			wantErr: true,
		},
		{
			name:    "missing secret",
			input:   SecretGetMaskedInput{Description: "Nope"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, out, err := s.handleSecretGetMasked(ctx, nil, tt.input)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("handleSecretGetMasked failed: %v", err)
			}
			if out.MaskedValue != tt.wantMasked || out.ValueLength != tt.wantLength {
				t.Errorf("got %q (%d), want %q (%d)", out.MaskedValue, out.ValueLength, tt.wantMasked, tt.wantLength)
			}
		})
	}
}

func TestDeniedSecretsAreInvisible(t *testing.T) {
	s, _ := testServer(t, &Policy{Version: 1, DefaultAction: ActionAllow, DeniedSecrets: []string{"Work/*"}})
	ctx := context.Background()

	_, list, err := s.handleSecretList(ctx, nil, SecretListInput{})
	if err != nil {
		t.Fatalf("handleSecretList failed: %v", err)
	}
	if got := descriptions(list.Secrets); len(got) != 1 || got[0] != "Bank" {
		t.Errorf("list = %v, want [Bank]", got)
	}

	_, search, err := s.handleSecretSearch(ctx, nil, SecretSearchInput{Query: ".alice"})
	if err != nil {
		t.Fatalf("handleSecretSearch failed: %v", err)
	}
	if got := descriptions(search.Secrets); len(got) != 1 || got[0] != "Bank" {
		t.Errorf("search = %v, want [Bank]", got)
	}

	_, exists, err := s.handleSecretExists(ctx, nil, SecretExistsInput{Description: "Work/GitHub"})
	if err != nil {
		t.Fatalf("handleSecretExists failed: %v", err)
	}
	if exists.Exists {
		t.Error("denied secret reported as existing")
	}

	if _, _, err := s.handleSecretGetMasked(ctx, nil, SecretGetMaskedInput{Description: "Work/GitHub"}); err == nil {
		t.Error("expected error for denied secret")
	}
}

func TestDeniedToolIsAudited(t *testing.T) {
	s, v := testServer(t, &Policy{Version: 1, DefaultAction: ActionDeny, AllowedTools: []string{ToolSecretList}})
	ctx := context.Background()

	if _, _, err := s.handleSecretList(ctx, nil, SecretListInput{}); err != nil {
		t.Fatalf("allowed tool failed: %v", err)
	}
	_, _, err := s.handleSecretGetMasked(ctx, nil, SecretGetMaskedInput{Description: "Bank"})
	if err == nil || !strings.Contains(err.Error(), "permission denied") {
		t.Fatalf("expected permission denied, got %v", err)
	}

	events, err := v.Audit().ListEvents(0, time.Time{})
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	var listed, denied bool
	for _, e := range events {
		if e.Actor.Source != audit.SourceMCP {
			continue
		}
		if e.Operation == audit.OpSecretList && e.Result == audit.ResultSuccess {
			listed = true
		}
		if e.Operation == audit.OpSecretMasked && e.Result == audit.ResultDenied {
			denied = true
		}
	}
	if !listed || !denied {
		t.Errorf("missing MCP audit events (listed=%v denied=%v) in %d events", listed, denied, len(events))
	}
}

func TestLockedVaultRejectsCalls(t *testing.T) {
	s, v := testServer(t, nil)
	v.Lock()

	_, _, err := s.handleSecretList(context.Background(), nil, SecretListInput{})
	if !errors.Is(err, vault.ErrVaultLocked) {
		t.Errorf("expected ErrVaultLocked, got %v", err)
	}
}

func TestClose_LocksVault(t *testing.T) {
	s, v := testServer(t, nil)
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !v.IsLocked() {
		t.Error("vault still unlocked after Close")
	}
}
