package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/secretkeep/secretkeep/pkg/crypto"
	"github.com/secretkeep/secretkeep/pkg/security"
	"github.com/secretkeep/secretkeep/pkg/vault"
)

var resetForce bool

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(passwdCmd)
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().BoolVarP(&resetForce, "force", "f", false, "Skip confirmation prompt")
}

// initCmd initializes a new vault
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initializes a new vault",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		exists, err := v.Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("a vault already exists in %s", cfg.Vault.Dir)
		}

		fmt.Println("Initializing new vault...")

		password, err := readNewPassword("Master password")
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(password)

		result := security.ValidateMasterPassword(string(password))
		if !result.Valid {
			return fmt.Errorf("password validation failed: %s", result.Warnings[0])
		}
		// Warnings are advisory, not blocking
		fmt.Printf("Password strength: %s\n", result.Strength)
		for _, warning := range result.Warnings {
			warnf("%s", warning)
		}

		if err := v.Create(ctx, password); err != nil {
			return fmt.Errorf("failed to initialize vault: %w", err)
		}

		fmt.Printf("Vault initialized successfully at %s\n", cfg.Vault.Dir)
		return nil
	},
}

// passwdCmd changes the master password.
var passwdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Change the master password",
	Long: `Change the master password.

The vault is re-encrypted under the new password with a fresh salt, using
the configured key derivation rounds (--rounds). A restore point is taken
first. Restore points made before the change still need the old password.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureUnlocked(ctx); err != nil {
			return err
		}

		current, err := readPassword("Enter current password: ")
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(current)

		next, err := readNewPassword("New password")
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(next)

		if string(current) == string(next) {
			return errors.New("new password must be different from current password")
		}
		validation := security.ValidateMasterPassword(string(next))
		if !validation.Valid {
			return fmt.Errorf("password validation failed: %s", validation.Warnings[0])
		}
		fmt.Printf("New password strength: %s\n", validation.Strength)

		if err := v.ChangePassword(ctx, current, next, cfg.Vault.Rounds); err != nil {
			if errors.Is(err, vault.ErrInvalidPasswordOrCorrupt) {
				return errors.New("current password is incorrect")
			}
			return fmt.Errorf("failed to change password: %w", err)
		}

		fmt.Println("Password changed successfully!")
		return nil
	},
}

// resetCmd deletes the vault.
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Permanently delete the vault",
	Long: `Permanently delete the vault, for example after the master password is lost.

The vault file, its failed-unlock record and the audit log are removed.
Restore points stay in place but still need the old password.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		exists, err := v.Exists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("no vault found in %s", cfg.Vault.Dir)
		}

		if !resetForce && !confirm(fmt.Sprintf("Delete vault '%s' and all of its secrets?", cfg.Vault.Name)) {
			fmt.Println("Aborted")
			return nil
		}

		if err := v.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset vault: %w", err)
		}
		fmt.Println("Vault deleted")
		return nil
	},
}
