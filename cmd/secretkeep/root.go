package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/secretkeep/secretkeep/internal/config"
	"github.com/secretkeep/secretkeep/internal/logging"
	"github.com/secretkeep/secretkeep/pkg/audit"
	"github.com/secretkeep/secretkeep/pkg/crypto"
	"github.com/secretkeep/secretkeep/pkg/persist"
	"github.com/secretkeep/secretkeep/pkg/vault"
)

// Command annotations read by setup.
const (
	annotationNoVault = "secretkeep/no-vault"
	annotationSource  = "secretkeep/source"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  = zap.NewNop()
	store   persist.Store
	v       *vault.Vault

	// stdin is shared so piped input survives several prompts.
	stdin = bufio.NewReader(os.Stdin)
)

// flagBindings maps config keys to the flags that override them. Keys are
// bound only when the running command has the flag.
var flagBindings = []struct{ key, flag string }{
	{"vault.dir", "vault-dir"},
	{"vault.name", "vault-name"},
	{"vault.rounds", "rounds"},
	{"storage.backend", "backend"},
	{"log.level", "log-level"},
	{"log.format", "log-format"},
	{"sync.dir", "dir"},
	{"sync.key_file", "sync-key"},
	{"mcp.policy", "policy"},
	{"backup.keep", "keep"},
}

var rootCmd = &cobra.Command{
	Use:   "secretkeep",
	Short: "secretkeep is a local password vault",
	Long: `A password vault for the command line.

Secrets are stored encrypted in a single vault file, kept in order by
description. Vaults written by older releases are opened and upgraded
transparently.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	// PersistentPreRunE runs before every subcommand: it resolves the
	// configuration and builds the vault.
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		teardown()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default <vault-dir>/config.yaml)")
	pf.String("vault-dir", "", "Vault directory (default ~/.secretkeep)")
	pf.String("vault-name", "", "Vault name within the directory (default secrets)")
	pf.Int("rounds", 0, "Key derivation rounds for new vaults and password changes")
	pf.String("backend", "", "Storage backend: file or sqlite")
	pf.String("log-level", "", "Log level: debug, info, warn, error")
	pf.String("log-format", "", "Log format: console or json")
}

func setup(cmd *cobra.Command, _ []string) error {
	vp := viper.New()
	for _, b := range flagBindings {
		if f := cmd.Flags().Lookup(b.flag); f != nil {
			if err := vp.BindPFlag(b.key, f); err != nil {
				return err
			}
		}
	}

	var err error
	cfg, err = config.Load(vp, cfgFile)
	if err != nil {
		return err
	}
	logger, err = logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return err
	}
	if cmd.Annotations[annotationNoVault] == "true" {
		return nil
	}

	store, err = openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	source := audit.SourceCLI
	if s := cmd.Annotations[annotationSource]; s != "" {
		source = s
	}
	v = vault.New(store,
		vault.WithName(cfg.Vault.Name),
		vault.WithRounds(cfg.Vault.Rounds),
		vault.WithLogger(logger),
		vault.WithSource(source),
		vault.WithAudit(audit.NewLogger(filepath.Join(cfg.Vault.Dir, "audit"), audit.WithLogger(logger))),
		vault.WithRestorePoints(cfg.Backup.Keep, cfg.Backup.MaxAge),
	)
	logger.Debug("vault configured",
		zap.String("dir", cfg.Vault.Dir),
		zap.String("backend", cfg.Storage.Backend),
		zap.Int("rounds", cfg.Vault.Rounds))
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (persist.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		if err := os.MkdirAll(cfg.Vault.Dir, persist.DirMode); err != nil {
			return nil, fmt.Errorf("failed to create vault directory: %w", err)
		}
		return persist.OpenSQLite(ctx, cfg.SQLitePath())
	default:
		return persist.NewFileStore(cfg.Vault.Dir, persist.WithLogger(logger))
	}
}

func teardown() {
	if v != nil {
		v.Lock()
		v = nil
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close store", zap.Error(err))
		}
		store = nil
	}
	_ = logger.Sync()
}

// readPassword prompts on stderr and reads a password without echo. Piped
// input is read one line at a time.
func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		return password, nil
	}
	line, err := readLine()
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	return []byte(line), nil
}

// readNewPassword prompts for a password and its confirmation.
func readNewPassword(prompt string) ([]byte, error) {
	password1, err := readPassword(prompt + ": ")
	if err != nil {
		return nil, err
	}
	password2, err := readPassword("Confirm " + strings.ToLower(prompt) + ": ")
	defer crypto.SecureWipe(password2)
	if err != nil {
		crypto.SecureWipe(password1)
		return nil, err
	}
	if string(password1) != string(password2) {
		crypto.SecureWipe(password1)
		return nil, errors.New("passwords do not match")
	}
	return password1, nil
}

// readLine reads a single line from stdin, trimming the line ending.
func readLine() (string, error) {
	line, err := stdin.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r"), nil
}

// confirm asks a yes/no question. Anything but y or yes is no.
func confirm(question string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", question)
	answer, err := readLine()
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

// ensureUnlocked unlocks the vault, prompting for the master password.
func ensureUnlocked(ctx context.Context) error {
	if !v.IsLocked() {
		return nil
	}
	exists, err := v.Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("no vault found in %s (run 'secretkeep init' first)", cfg.Vault.Dir)
	}
	if remaining := v.RemainingCooldown(ctx); remaining > 0 {
		return fmt.Errorf("too many failed attempts: try again in %s", remaining.Round(time.Second))
	}

	password, err := readPassword("Enter master password: ")
	if err != nil {
		return err
	}
	defer crypto.SecureWipe(password)

	return unlock(ctx, password)
}

func unlock(ctx context.Context, password []byte) error {
	err := v.Unlock(ctx, password)
	switch {
	case err == nil:
	case errors.Is(err, vault.ErrPersistence) && !v.IsLocked():
		// Unlocked, but the upgraded vault could not be written back.
		warnf("%v", err)
	case errors.Is(err, vault.ErrCooldownActive):
		return fmt.Errorf("too many failed attempts: try again in %s", v.RemainingCooldown(ctx).Round(time.Second))
	default:
		return fmt.Errorf("failed to unlock vault: %w", err)
	}

	warnStaleRestorePoint(ctx)
	return nil
}

// warnStaleRestorePoint reminds the user when the newest restore point is
// older than backup.max_age.
func warnStaleRestorePoint(ctx context.Context) {
	if cfg.Backup.MaxAge == 0 {
		return
	}
	stale, age, err := v.RestorePointStale(ctx)
	if err != nil {
		logger.Debug("restore point check failed", zap.Error(err))
		return
	}
	if !stale {
		return
	}
	if age == 0 {
		warnf("no restore point yet (run 'secretkeep backup create')")
		return
	}
	warnf("newest restore point is from %s (run 'secretkeep backup create')",
		humanize.Time(time.Now().Add(-age)))
}

// findSecret returns the position of the active secret with description.
func findSecret(description string) (int, error) {
	pos, err := v.Secrets().Find(description)
	if err != nil {
		return -1, fmt.Errorf("secret '%s' not found", description)
	}
	return pos, nil
}

// parseDuration parses a duration string like "30d", "1y", "24h"
func parseDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("duration too short: %s", s)
	}

	unit := s[len(s)-1]
	valueStr := s[:len(s)-1]

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return time.ParseDuration(s)
	}

	switch unit {
	case 'd':
		return time.Duration(value) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(value) * 7 * 24 * time.Hour, nil
	case 'y':
		return time.Duration(value) * 365 * 24 * time.Hour, nil
	default:
		// Try standard time.ParseDuration
		return time.ParseDuration(s)
	}
}
