// Package mcp implements the MCP (Model Context Protocol) server for
// secretkeep. Clients see secret metadata and masked values only; no tool
// returns a plaintext password.
package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/secretkeep/secretkeep/pkg/audit"
	"github.com/secretkeep/secretkeep/pkg/vault"
)

// Server represents the MCP server for secretkeep.
type Server struct {
	server *mcp.Server
	vault  *vault.Vault
	policy *Policy
	logger *zap.Logger
}

// ServerOptions contains configuration options for the MCP server.
type ServerOptions struct {
	// Vault must already be unlocked. The server locks it on exit.
	Vault *vault.Vault

	// Policy restricts tools and secrets. Nil means DefaultPolicy.
	Policy *Policy

	Logger *zap.Logger

	// Version is reported to clients during initialization.
	Version string
}

// NewServer creates a new MCP server instance.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Vault == nil {
		return nil, errors.New("mcp: vault is required")
	}
	if opts.Vault.IsLocked() {
		return nil, fmt.Errorf("mcp: %w", vault.ErrVaultLocked)
	}
	if opts.Policy == nil {
		opts.Policy = DefaultPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "secretkeep",
			Version: opts.Version,
		},
		nil,
	)

	s := &Server{
		server: mcpServer,
		vault:  opts.Vault,
		policy: opts.Policy,
		logger: opts.Logger,
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolSecretList,
		Description: "List secret descriptions with metadata. An optional glob pattern such as 'Work/*' narrows the list. Does NOT return secret values.",
	}, s.handleSecretList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolSecretSearch,
		Description: "Search secrets. A query matches descriptions by prefix; a query starting with '.' searches description, username, email and note text. Does NOT return secret values.",
	}, s.handleSecretSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolSecretExists,
		Description: "Check if a secret with the exact description exists and return its metadata. Does NOT return the secret value.",
	}, s.handleSecretExists)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolSecretGetMasked,
		Description: "Get a masked version of a secret field (e.g., '****WXYZ'). Field is password (default), username or email. Useful for verifying a value without exposing it.",
	}, s.handleSecretGetMasked)
}

// authorize checks the tool against the policy and audits a denial.
func (s *Server) authorize(tool string) error {
	if allowed, reason := s.policy.IsToolAllowed(tool); !allowed {
		s.logger.Info("mcp tool denied", zap.String("tool", tool), zap.String("reason", reason))
		s.auditDenied(auditOp(tool), "", reason)
		return fmt.Errorf("permission denied: %s", reason)
	}
	if s.vault.IsLocked() {
		return vault.ErrVaultLocked
	}
	return nil
}

func (s *Server) auditSuccess(op, description string) {
	l := s.vault.Audit()
	if l == nil || !l.Active() {
		return
	}
	if err := l.LogSuccess(op, audit.SourceMCP, description); err != nil {
		s.logger.Warn("failed to write audit event", zap.String("op", op), zap.Error(err))
	}
}

func (s *Server) auditDenied(op, description, reason string) {
	l := s.vault.Audit()
	if l == nil || !l.Active() {
		return
	}
	if err := l.LogDenied(op, audit.SourceMCP, description, reason); err != nil {
		s.logger.Warn("failed to write audit event", zap.String("op", op), zap.Error(err))
	}
}

// Run starts the MCP server using stdio transport.
func (s *Server) Run(ctx context.Context) error {
	defer s.vault.Lock()

	s.logger.Info("mcp server started", zap.Int("secrets", s.vault.Secrets().Len()))
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Close locks the vault.
func (s *Server) Close() error {
	s.vault.Lock()
	return nil
}
