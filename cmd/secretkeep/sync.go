package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/secretkeep/secretkeep/internal/syncagent"
	"github.com/secretkeep/secretkeep/pkg/backup"
)

var (
	syncNormalize bool
	syncInitKey   bool
)

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().String("dir", "", "Shared sync directory (config: sync.dir)")
	syncCmd.Flags().String("sync-key", "", "Sync key file (default <vault-dir>/sync.key)")
	syncCmd.Flags().BoolVar(&syncNormalize, "normalize", false, "Normalize descriptions first when needed")
	syncCmd.Flags().BoolVar(&syncInitKey, "init-key", false, "Create a new sync key file and exit")
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize with a shared folder",
	Long: `Synchronize the vault with the copy kept in a shared folder.

Every peer syncing through the folder needs the same key file. Create it
once with --init-key and copy it to the other machines over a trusted
channel. When two peers changed the same secret, the most recent change
wins; deletions are carried over until purged.

Examples:
  secretkeep sync --init-key
  secretkeep sync --dir ~/Dropbox/secretkeep`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		keyFile := cfg.SyncKeyFile()

		if syncInitKey {
			if _, err := os.Stat(keyFile); err == nil {
				return fmt.Errorf("key file %s already exists", keyFile)
			}
			if err := backup.GenerateKeyFile(keyFile); err != nil {
				return fmt.Errorf("failed to create key file: %w", err)
			}
			fmt.Printf("Sync key written to %s\n", keyFile)
			fmt.Println("Copy it to every machine that syncs with this vault.")
			return nil
		}

		if cfg.Sync.Dir == "" {
			return errors.New("no sync directory configured (use --dir or set sync.dir)")
		}
		if _, err := os.Stat(keyFile); err != nil {
			return fmt.Errorf("sync key %s not found (create one with 'secretkeep sync --init-key')", keyFile)
		}
		if err := ensureUnlocked(ctx); err != nil {
			return err
		}

		agent, err := syncagent.NewFolderAgent(cfg.Sync.Dir, keyFile, syncagent.WithFolderLogger(logger))
		if err != nil {
			return err
		}
		defer func() {
			if err := agent.Close(); err != nil {
				logger.Warn("failed to close sync folder", zap.Error(err))
			}
		}()

		res, err := syncagent.Run(ctx, v, agent, syncagent.Options{Normalize: syncNormalize, Logger: logger})
		if errors.Is(err, syncagent.ErrNeedsNormalize) {
			return errors.New("descriptions must be unique and trimmed before syncing (run 'secretkeep normalize' or use --normalize)")
		}
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}

		if res.Normalized {
			fmt.Println("Descriptions normalized")
		}
		fmt.Printf("Synced with %s: sent %d, applied %d (%s)\n", cfg.Sync.Dir, res.Sent, res.Applied, res.Duration.Round(1e6))
		return nil
	},
}
