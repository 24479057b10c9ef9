package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/secretkeep/secretkeep/internal/cli"
	"github.com/secretkeep/secretkeep/pkg/audit"
	"github.com/secretkeep/secretkeep/pkg/secret"
)

// Masked fields
const (
	FieldPassword = "password"
	FieldUsername = "username"
	FieldEmail    = "email"
)

// SecretListInput represents input for secret_list tool.
type SecretListInput struct {
	Pattern string `json:"pattern,omitempty"`
}

// SecretListOutput represents output for secret_list and secret_search.
type SecretListOutput struct {
	Secrets []SecretInfo `json:"secrets"`
}

// SecretInfo represents metadata for a secret (no values).
type SecretInfo struct {
	Description string `json:"description"`
	HasUsername bool   `json:"has_username"`
	HasPassword bool   `json:"has_password"`
	HasEmail    bool   `json:"has_email"`
	HasNote     bool   `json:"has_note"`
	ModifiedAt  string `json:"modified_at,omitempty"`
	LastAccess  string `json:"last_access,omitempty"`
	LastAction  string `json:"last_action,omitempty"`
}

// SecretSearchInput represents input for secret_search tool.
type SecretSearchInput struct {
	Query string `json:"query"`
}

// SecretExistsInput represents input for secret_exists tool.
type SecretExistsInput struct {
	Description string `json:"description"`
}

// SecretExistsOutput represents output for secret_exists tool.
type SecretExistsOutput struct {
	Exists bool        `json:"exists"`
	Secret *SecretInfo `json:"secret,omitempty"`
}

// SecretGetMaskedInput represents input for secret_get_masked tool.
type SecretGetMaskedInput struct {
	Description string `json:"description"`
	Field       string `json:"field,omitempty"`
}

// SecretGetMaskedOutput represents output for secret_get_masked tool.
type SecretGetMaskedOutput struct {
	Description string `json:"description"`
	Field       string `json:"field"`
	MaskedValue string `json:"masked_value"`
	ValueLength int    `json:"value_length"`
}

func auditOp(tool string) string {
	switch tool {
	case ToolSecretExists:
		return audit.OpSecretExists
	case ToolSecretGetMasked:
		return audit.OpSecretMasked
	default:
		return audit.OpSecretList
	}
}

func infoFor(s secret.Secret) SecretInfo {
	info := SecretInfo{
		Description: s.Description,
		HasUsername: s.Username != "",
		HasPassword: s.Password != "",
		HasEmail:    s.Email != "",
		HasNote:     s.Note != "",
	}
	if mod := s.LastModified(); !mod.IsZero() {
		info.ModifiedAt = mod.UTC().Format(time.RFC3339)
	}
	if last, ok := s.LastAccessed(); ok {
		info.LastAccess = last.At().UTC().Format(time.RFC3339)
		info.LastAction = last.Type.String()
	}
	return info
}

// visible drops secrets hidden by the policy and converts the rest.
func (s *Server) visible(secrets []secret.Secret) []SecretInfo {
	out := make([]SecretInfo, 0, len(secrets))
	for _, sec := range secrets {
		if ok, _ := s.policy.IsSecretVisible(sec.Description); ok {
			out = append(out, infoFor(sec))
		}
	}
	return out
}

// lookup returns the active secret with the exact description. Hidden
// secrets are reported as missing.
func (s *Server) lookup(description string) (secret.Secret, bool, error) {
	if ok, _ := s.policy.IsSecretVisible(description); !ok {
		return secret.Secret{}, false, nil
	}
	c := s.vault.Secrets()
	pos, err := c.Find(description)
	if errors.Is(err, secret.ErrNotFound) {
		return secret.Secret{}, false, nil
	}
	if err != nil {
		return secret.Secret{}, false, err
	}
	sec, err := c.At(pos)
	if err != nil {
		return secret.Secret{}, false, err
	}
	return sec, true, nil
}

// handleSecretList handles the secret_list tool call.
func (s *Server) handleSecretList(_ context.Context, _ *mcp.CallToolRequest, input SecretListInput) (*mcp.CallToolResult, SecretListOutput, error) {
	if err := s.authorize(ToolSecretList); err != nil {
		return nil, SecretListOutput{}, err
	}

	active := s.vault.Secrets().Active()
	if input.Pattern != "" {
		if err := cli.ValidatePattern(input.Pattern); err != nil {
			return nil, SecretListOutput{}, err
		}
		filtered := active[:0]
		for _, sec := range active {
			if ok, _ := cli.MatchAny([]string{input.Pattern}, sec.Description); ok {
				filtered = append(filtered, sec)
			}
		}
		active = filtered
	}

	output := SecretListOutput{Secrets: s.visible(active)}
	s.auditSuccess(audit.OpSecretList, "")
	return nil, output, nil
}

// handleSecretSearch handles the secret_search tool call.
func (s *Server) handleSecretSearch(_ context.Context, _ *mcp.CallToolRequest, input SecretSearchInput) (*mcp.CallToolResult, SecretListOutput, error) {
	if err := s.authorize(ToolSecretSearch); err != nil {
		return nil, SecretListOutput{}, err
	}
	if strings.TrimSpace(input.Query) == "" {
		return nil, SecretListOutput{}, errors.New("query is required")
	}

	matches := secret.Filter(s.vault.Secrets().Active(), input.Query)
	output := SecretListOutput{Secrets: s.visible(matches)}
	s.auditSuccess(audit.OpSecretList, "")
	return nil, output, nil
}

// handleSecretExists handles the secret_exists tool call.
func (s *Server) handleSecretExists(_ context.Context, _ *mcp.CallToolRequest, input SecretExistsInput) (*mcp.CallToolResult, SecretExistsOutput, error) {
	if err := s.authorize(ToolSecretExists); err != nil {
		return nil, SecretExistsOutput{}, err
	}
	if input.Description == "" {
		return nil, SecretExistsOutput{}, errors.New("description is required")
	}

	sec, found, err := s.lookup(input.Description)
	if err != nil {
		return nil, SecretExistsOutput{}, fmt.Errorf("failed to look up secret: %w", err)
	}
	if !found {
		return nil, SecretExistsOutput{Exists: false}, nil
	}

	info := infoFor(sec)
	s.auditSuccess(audit.OpSecretExists, sec.Description)
	return nil, SecretExistsOutput{Exists: true, Secret: &info}, nil
}

// handleSecretGetMasked handles the secret_get_masked tool call.
func (s *Server) handleSecretGetMasked(_ context.Context, _ *mcp.CallToolRequest, input SecretGetMaskedInput) (*mcp.CallToolResult, SecretGetMaskedOutput, error) {
	if err := s.authorize(ToolSecretGetMasked); err != nil {
		return nil, SecretGetMaskedOutput{}, err
	}
	if input.Description == "" {
		return nil, SecretGetMaskedOutput{}, errors.New("description is required")
	}
	field := input.Field
	if field == "" {
		field = FieldPassword
	}

	sec, found, err := s.lookup(input.Description)
	if err != nil {
		return nil, SecretGetMaskedOutput{}, fmt.Errorf("failed to look up secret: %w", err)
	}
	if !found {
		return nil, SecretGetMaskedOutput{}, fmt.Errorf("secret not found: %q", input.Description)
	}

	var value string
	switch field {
	case FieldPassword:
		value = sec.Password
	case FieldUsername:
		value = sec.Username
	case FieldEmail:
		value = sec.Email
	default:
		return nil, SecretGetMaskedOutput{}, fmt.Errorf("unknown field %q (must be %s, %s or %s)", field, FieldPassword, FieldUsername, FieldEmail)
	}

	s.auditSuccess(audit.OpSecretMasked, sec.Description)
	return nil, SecretGetMaskedOutput{
		Description: sec.Description,
		Field:       field,
		MaskedValue: maskValue(value),
		ValueLength: utf8.RuneCountInString(value),
	}, nil
}

// maskValue masks a value by its length in characters.
// | Length  | Format          | Example   |
// |---------|-----------------|-----------|
// | 1-4     | All *           | ****      |
// | 5-8     | Show last 2     | ******XY  |
// | 9+      | Show last 4     | ****WXYZ  |
func maskValue(value string) string {
	runes := []rune(value)
	length := len(runes)
	if length == 0 {
		return ""
	}

	var shown int
	switch {
	case length <= 4:
		shown = 0
	case length <= 8:
		shown = 2
	default:
		shown = 4
	}
	return strings.Repeat("*", length-shown) + string(runes[length-shown:])
}
