package mcp

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/secretkeep/secretkeep/internal/cli"
)

// Policy controls which tools an MCP client may call and which secrets it
// may see. Secrets matching DeniedSecrets are invisible: they are left out
// of listings and reported as missing.
type Policy struct {
	Version       int      `yaml:"version"`
	DefaultAction string   `yaml:"default_action"`
	AllowedTools  []string `yaml:"allowed_tools"`
	DeniedTools   []string `yaml:"denied_tools"`
	DeniedSecrets []string `yaml:"denied_secrets"`
}

// PolicyFileName is the name of the policy file in the vault directory.
const PolicyFileName = "mcp-policy.yaml"

// Policy action constants
const (
	ActionAllow = "allow"
	ActionDeny  = "deny"
)

// Tool names
const (
	ToolSecretList      = "secret_list"
	ToolSecretSearch    = "secret_search"
	ToolSecretExists    = "secret_exists"
	ToolSecretGetMasked = "secret_get_masked"
)

// ToolNames returns every tool the server registers.
func ToolNames() []string {
	return []string{ToolSecretList, ToolSecretSearch, ToolSecretExists, ToolSecretGetMasked}
}

var (
	// ErrPolicyNotFound is returned when no policy file exists.
	ErrPolicyNotFound = errors.New("MCP policy file not found")

	// ErrPolicyInsecure is returned when the policy file is readable by others.
	ErrPolicyInsecure = errors.New("MCP policy file has insecure permissions")

	// ErrPolicySymlink is returned when the policy file is a symlink.
	ErrPolicySymlink = errors.New("MCP policy file is a symlink")

	// ErrPolicyNotOwnedByUser is returned when the policy file belongs to
	// another user.
	ErrPolicyNotOwnedByUser = errors.New("MCP policy file not owned by current user")
)

// DefaultPolicy allows every tool and hides nothing. It applies when no
// policy file exists.
func DefaultPolicy() *Policy {
	return &Policy{Version: 1, DefaultAction: ActionAllow}
}

// LoadPolicy reads the policy at path. The file is checked through the
// opened descriptor so it cannot be swapped between check and read.
func LoadPolicy(path string) (*Policy, error) {
	f, err := openPolicyFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat policy file: %w", err)
	}
	if err := checkPolicyFile(info); err != nil {
		return nil, err
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var policy Policy
	if err := yaml.Unmarshal(content, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	// Default to deny if not specified
	if policy.DefaultAction == "" {
		policy.DefaultAction = ActionDeny
	}

	if err := policy.ValidatePolicy(); err != nil {
		return nil, err
	}
	return &policy, nil
}

// ValidatePolicy checks the version, the action, tool names and secret
// patterns.
func (p *Policy) ValidatePolicy() error {
	if p.Version != 1 {
		return fmt.Errorf("unsupported policy version: %d", p.Version)
	}
	if p.DefaultAction != ActionAllow && p.DefaultAction != ActionDeny {
		return fmt.Errorf("invalid default_action: %q (must be %q or %q)", p.DefaultAction, ActionAllow, ActionDeny)
	}
	known := ToolNames()
	for _, list := range [][]string{p.AllowedTools, p.DeniedTools} {
		for _, name := range list {
			if !slices.Contains(known, name) {
				return fmt.Errorf("unknown tool in policy: %q", name)
			}
		}
	}
	for _, pattern := range p.DeniedSecrets {
		if err := cli.ValidatePattern(pattern); err != nil {
			return fmt.Errorf("denied_secrets: %w", err)
		}
	}
	return nil
}

// IsToolAllowed checks if a tool may be called.
// Evaluation order:
// 1. denied_tools → deny
// 2. allowed_tools → allow
// 3. default_action
func (p *Policy) IsToolAllowed(tool string) (allowed bool, reason string) {
	if slices.Contains(p.DeniedTools, tool) {
		return false, fmt.Sprintf("tool '%s' is denied by policy", tool)
	}
	if slices.Contains(p.AllowedTools, tool) {
		return true, ""
	}
	if p.DefaultAction == ActionAllow {
		return true, ""
	}
	return false, fmt.Sprintf("tool '%s' is not in allowed_tools", tool)
}

// IsSecretVisible reports whether description escapes every denied_secrets
// pattern.
func (p *Policy) IsSecretVisible(description string) (visible bool, reason string) {
	if denied, pattern := cli.MatchAny(p.DeniedSecrets, description); denied {
		return false, fmt.Sprintf("secret matches denied pattern '%s'", pattern)
	}
	return true, ""
}
