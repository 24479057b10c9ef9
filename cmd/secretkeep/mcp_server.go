package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/secretkeep/secretkeep/internal/mcp"
	"github.com/secretkeep/secretkeep/pkg/audit"
	"github.com/secretkeep/secretkeep/pkg/crypto"
)

// passwordEnv holds the master password for non-interactive use.
const passwordEnv = "SECRETKEEP_PASSWORD"

func init() {
	rootCmd.AddCommand(mcpServerCmd)

	mcpServerCmd.Flags().String("policy", "", "MCP policy file (default <vault-dir>/mcp-policy.yaml)")
}

// mcpServerCmd starts the MCP server for AI coding assistant integration
var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Start the MCP server for AI coding assistant integration",
	Long: `Start the MCP server that gives AI coding assistants read-only access to
secret metadata.

The server implements the Model Context Protocol (MCP) over stdio. Clients
never receive plaintext values.

Available tools:
  - secret_list:       List secrets with metadata, optionally by glob
  - secret_search:     Search secrets like 'secretkeep list'
  - secret_exists:     Check if a secret exists with metadata
  - secret_get_masked: Get a masked value (e.g., "****WXYZ")

Authentication:
  Set SECRETKEEP_PASSWORD before starting the server. The password is read
  once and immediately cleared from the environment.

  SECURITY NOTE: On Linux, the environment variable may briefly be visible
  via /proc/<pid>/environ before it is cleared.

Policy:
  Create ~/.secretkeep/mcp-policy.yaml (mode 0600) to restrict tools and
  hide secrets by glob. Without a policy file every tool is allowed and
  every secret is visible.

Example MCP client configuration:
  {
    "mcpServers": {
      "secretkeep": {
        "type": "stdio",
        "command": "/path/to/secretkeep",
        "args": ["mcp-server"],
        "env": {
          "SECRETKEEP_PASSWORD": "your-master-password"
        }
      }
    }
  }`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationSource: audit.SourceMCP},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCPServer(cmd.Context())
	},
}

func runMCPServer(parent context.Context) error {
	policy, err := mcp.LoadPolicy(cfg.PolicyPath())
	switch {
	case errors.Is(err, mcp.ErrPolicyNotFound):
		policy = mcp.DefaultPolicy()
	case err != nil:
		return fmt.Errorf("failed to load MCP policy: %w", err)
	}

	password := []byte(os.Getenv(passwordEnv))
	// Clear immediately so child processes and later reads cannot see it.
	_ = os.Unsetenv(passwordEnv)
	if len(password) == 0 {
		return fmt.Errorf("%s environment variable is required", passwordEnv)
	}
	err = unlock(parent, password)
	crypto.SecureWipe(password)
	if err != nil {
		return err
	}

	server, err := mcp.NewServer(mcp.ServerOptions{
		Vault:   v,
		Policy:  policy,
		Logger:  logger,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		// Don't report context canceled as an error
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
