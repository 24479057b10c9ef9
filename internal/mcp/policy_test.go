package mcp

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writePolicy(t *testing.T, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), PolicyFileName)
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		t.Fatalf("failed to write policy file: %v", err)
	}
	// WriteFile honours the umask; force the mode under test.
	if err := os.Chmod(path, perm); err != nil {
		t.Fatalf("failed to chmod policy file: %v", err)
	}
	return path
}

func TestLoadPolicy_NotFound(t *testing.T) {
	_, err := LoadPolicy(filepath.Join(t.TempDir(), PolicyFileName))
	if !errors.Is(err, ErrPolicyNotFound) {
		t.Errorf("expected ErrPolicyNotFound, got %v", err)
	}
}

func TestLoadPolicy_Success(t *testing.T) {
	path := writePolicy(t, `version: 1
default_action: deny
allowed_tools:
  - secret_list
  - secret_exists
denied_tools:
  - secret_get_masked
denied_secrets:
  - "Work/*"
  - Bank
`, 0600)

	policy, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy failed: %v", err)
	}

	if policy.Version != 1 {
		t.Errorf("expected version 1, got %d", policy.Version)
	}
	if policy.DefaultAction != ActionDeny {
		t.Errorf("expected default_action 'deny', got '%s'", policy.DefaultAction)
	}
	if len(policy.AllowedTools) != 2 {
		t.Errorf("expected 2 allowed tools, got %d", len(policy.AllowedTools))
	}
	if len(policy.DeniedTools) != 1 {
		t.Errorf("expected 1 denied tool, got %d", len(policy.DeniedTools))
	}
	if len(policy.DeniedSecrets) != 2 {
		t.Errorf("expected 2 denied secret patterns, got %d", len(policy.DeniedSecrets))
	}
}

func TestLoadPolicy_InsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced on Windows")
	}
	path := writePolicy(t, "version: 1\ndefault_action: deny\n", 0644)

	_, err := LoadPolicy(path)
	if !errors.Is(err, ErrPolicyInsecure) {
		t.Errorf("expected ErrPolicyInsecure, got %v", err)
	}
}

func TestLoadPolicy_Symlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need extra privileges on Windows")
	}
	target := writePolicy(t, "version: 1\n", 0600)
	link := filepath.Join(t.TempDir(), PolicyFileName)
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}

	_, err := LoadPolicy(link)
	if !errors.Is(err, ErrPolicySymlink) {
		t.Errorf("expected ErrPolicySymlink, got %v", err)
	}
}

func TestLoadPolicy_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid YAML", `invalid: yaml: content: [[[`},
		{"unsupported version", "version: 99\ndefault_action: deny\n"},
		{"bad default action", "version: 1\ndefault_action: maybe\n"},
		{"unknown tool", "version: 1\nallowed_tools: [secret_run]\n"},
		{"bad secret pattern", "version: 1\ndenied_secrets: [\"[oops\"]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writePolicy(t, tt.content, 0600)
			if _, err := LoadPolicy(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadPolicy_DefaultActionFallback(t *testing.T) {
	path := writePolicy(t, "version: 1\nallowed_tools:\n  - secret_list\n", 0600)

	policy, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy failed: %v", err)
	}
	if policy.DefaultAction != ActionDeny {
		t.Errorf("expected default_action to fall back to 'deny', got '%s'", policy.DefaultAction)
	}
}

func TestIsToolAllowed(t *testing.T) {
	policy := &Policy{
		Version:       1,
		DefaultAction: ActionDeny,
		AllowedTools:  []string{ToolSecretList, ToolSecretGetMasked},
		DeniedTools:   []string{ToolSecretGetMasked},
	}

	tests := []struct {
		tool    string
		allowed bool
	}{
		{ToolSecretList, true},
		{ToolSecretGetMasked, false}, // denied wins over allowed
		{ToolSecretExists, false},    // default action
	}

	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			allowed, reason := policy.IsToolAllowed(tt.tool)
			if allowed != tt.allowed {
				t.Errorf("IsToolAllowed(%q) = %v (%s), want %v", tt.tool, allowed, reason, tt.allowed)
			}
			if !allowed && reason == "" {
				t.Error("denial without a reason")
			}
		})
	}

	open := DefaultPolicy()
	for _, tool := range ToolNames() {
		if allowed, _ := open.IsToolAllowed(tool); !allowed {
			t.Errorf("default policy denies %q", tool)
		}
	}
}

func TestIsSecretVisible(t *testing.T) {
	policy := &Policy{Version: 1, DefaultAction: ActionAllow, DeniedSecrets: []string{"Work/*", "Bank"}}

	tests := []struct {
		description string
		visible     bool
	}{
		{"Work/GitHub", false},
		{"Bank", false},
		{"Bank PIN", true},
		{"Home/Wifi", true},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			visible, _ := policy.IsSecretVisible(tt.description)
			if visible != tt.visible {
				t.Errorf("IsSecretVisible(%q) = %v, want %v", tt.description, visible, tt.visible)
			}
		})
	}
}
