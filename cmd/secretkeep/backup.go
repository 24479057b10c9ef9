package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/secretkeep/secretkeep/pkg/backup"
	"github.com/secretkeep/secretkeep/pkg/crypto"
	"github.com/secretkeep/secretkeep/pkg/vault"
)

var (
	backupOutput    string
	backupStdout    bool
	backupWithAudit bool
	backupKeyFile   string
	backupForce     bool

	restoreKeyFile     string
	restoreOldPassword bool
	restoreForce       bool

	verifyKeyFile string
)

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupCreateCmd, backupListCmd, backupRestoreCmd, backupVerifyCmd, backupPruneCmd)

	backupCreateCmd.Flags().StringVarP(&backupOutput, "output", "o", "", "Write a backup file instead of a restore point")
	backupCreateCmd.Flags().BoolVar(&backupStdout, "stdout", false, "Write the backup to stdout (for piping)")
	backupCreateCmd.Flags().BoolVar(&backupWithAudit, "with-audit", false, "Include audit log in backup")
	backupCreateCmd.Flags().StringVar(&backupKeyFile, "key-file", "", "Encryption key file (32 bytes)")
	backupCreateCmd.Flags().BoolVarP(&backupForce, "force", "f", false, "Overwrite existing file")

	backupRestoreCmd.Flags().StringVar(&restoreKeyFile, "key-file", "", "Decryption key file")
	backupRestoreCmd.Flags().BoolVar(&restoreOldPassword, "old-password", false, "Prompt for the master password the backup was made with")
	backupRestoreCmd.Flags().BoolVarP(&restoreForce, "force", "f", false, "Skip confirmation prompt")

	backupVerifyCmd.Flags().StringVar(&verifyKeyFile, "key-file", "", "Decryption key file")

	backupPruneCmd.Flags().Int("keep", 0, "Number of restore points to keep (config: backup.keep)")
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage restore points and backup files",
	Long: `Manage restore points and backup files.

Restore points are encrypted copies of the vault kept next to it. One is
taken automatically before every password change, sync, import and
restore. Backup files are the same container written anywhere, sealed
with the master password or a key file.`,
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a restore point or backup file",
	Long: `Create a restore point, or with --output or --stdout a backup file.

Examples:
  # Take a restore point now
  secretkeep backup create

  # Backup to a file
  secretkeep backup create -o vault-backup.skb

  # Backup with audit log, sealed with a key file
  secretkeep backup create -o full-backup.skb --with-audit --key-file=backup.key

  # Backup to stdout (for piping)
  secretkeep backup create --stdout | gpg --encrypt > backup.gpg`,
	Args: cobra.NoArgs,
	RunE: executeBackupCreate,
}

func executeBackupCreate(cmd *cobra.Command, args []string) error {
	if err := validateBackupFlags(); err != nil {
		return err
	}
	ctx := cmd.Context()
	if err := ensureUnlocked(ctx); err != nil {
		return err
	}

	if !backupStdout && backupOutput == "" {
		p, err := v.CreateRestorePoint(ctx)
		if err != nil {
			return fmt.Errorf("failed to create restore point: %w", err)
		}
		fmt.Printf("Restore point %s created (%s)\n", p.Name, humanize.Bytes(uint64(p.Size)))
		return nil
	}

	// Sealed in memory first so a failure leaves no partial file behind.
	var buf bytes.Buffer
	opts := vault.BackupOptions{KeyFile: backupKeyFile, IncludeAudit: backupWithAudit}
	if err := v.ExportBackup(ctx, &buf, opts); err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}

	if backupStdout {
		_, err := os.Stdout.Write(buf.Bytes())
		return err
	}
	if err := writePrivateFile(backupOutput, buf.Bytes(), backupForce); err != nil {
		return err
	}
	fmt.Printf("Backup created successfully: %s\n", backupOutput)
	return nil
}

func validateBackupFlags() error {
	if backupStdout && backupOutput != "" {
		return errors.New("--output and --stdout are mutually exclusive")
	}
	if (backupKeyFile != "" || backupWithAudit) && !backupStdout && backupOutput == "" {
		return errors.New("--key-file and --with-audit need --output or --stdout")
	}
	return nil
}

// writePrivateFile writes data readable by the owner only.
func writePrivateFile(path string, data []byte, force bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0600)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("output file already exists: %s (use --force to overwrite)", path)
	}
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return f.Close()
}

var backupListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List restore points",
	Aliases: []string{"ls"},
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		points, err := v.RestorePoints(cmd.Context())
		if err != nil {
			return err
		}
		if len(points) == 0 {
			fmt.Println("No restore points")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tCREATED\tSIZE")
		for _, p := range points {
			fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, humanize.Time(p.CreatedAt), humanize.Bytes(uint64(p.Size)))
		}
		return w.Flush()
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <restore-point|backup-file>",
	Short: "Replace the vault with a restore point or backup file",
	Long: `Replace the vault's secrets with a restore point or backup file.

The current state is kept as a restore point first. Backups made before
the last password change need --old-password.

Examples:
  secretkeep backup restore restore-20250301T120000.000000000Z
  secretkeep backup restore vault-backup.skb --old-password
  secretkeep backup restore full-backup.skb --key-file=backup.key`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureUnlocked(ctx); err != nil {
			return err
		}

		var password []byte
		if restoreOldPassword {
			pw, err := readPassword("Password the backup was made with: ")
			if err != nil {
				return err
			}
			defer crypto.SecureWipe(pw)
			password = pw
		}

		if !restoreForce && !confirm(fmt.Sprintf("Replace all secrets with '%s'?", args[0])) {
			fmt.Println("Aborted")
			return nil
		}

		var (
			n   int
			err error
		)
		if data, readErr := os.ReadFile(args[0]); readErr == nil {
			n, err = v.RestoreBackup(ctx, data, password, restoreKeyFile)
		} else {
			if restoreKeyFile != "" {
				return fmt.Errorf("backup file %s: %w", args[0], readErr)
			}
			n, err = v.RestoreFrom(ctx, args[0], password)
		}
		switch {
		case errors.Is(err, vault.ErrInvalidPasswordOrCorrupt):
			return errors.New("restore failed: wrong password or damaged backup (try --old-password)")
		case err != nil:
			return fmt.Errorf("restore failed: %w", err)
		}

		fmt.Printf("Restored %d secrets from %s\n", n, args[0])
		return nil
	},
}

var backupVerifyCmd = &cobra.Command{
	Use:   "verify <backup-file>",
	Short: "Check a backup file's integrity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read backup: %w", err)
		}
		header, err := backup.Inspect(data)
		if err != nil {
			return fmt.Errorf("not a backup file: %w", err)
		}

		creds := backup.Credentials{KeyFile: verifyKeyFile}
		if header.EncryptionMode == backup.EncryptionModeMaster && verifyKeyFile == "" {
			pw, err := readPassword("Master password the backup was made with: ")
			if err != nil {
				return err
			}
			defer crypto.SecureWipe(pw)
			creds.Password = pw
		}

		result := backup.Verify(data, creds)
		fmt.Printf("Created:    %s (%s)\n", header.CreatedAt.Local().Format("2006-01-02 15:04:05"), humanize.Time(header.CreatedAt))
		fmt.Printf("Encryption: %s\n", header.EncryptionMode)
		fmt.Printf("Secrets:    %d\n", header.SecretCount)
		fmt.Printf("Audit log:  %v\n", header.IncludesAudit)
		if !result.Valid {
			return fmt.Errorf("backup verification failed: %s", result.Error)
		}
		fmt.Println("Backup is valid")
		return nil
	},
}

var backupPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old restore points",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Backup.Keep < 1 {
			return errors.New("--keep must be at least 1")
		}
		n, err := v.PruneRestorePoints(cmd.Context(), cfg.Backup.Keep)
		if err != nil {
			return fmt.Errorf("failed to prune restore points: %w", err)
		}
		fmt.Printf("Deleted %d restore points, kept the newest %d\n", n, cfg.Backup.Keep)
		return nil
	},
}
