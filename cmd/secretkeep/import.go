package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/secretkeep/secretkeep/pkg/importer"
	"github.com/secretkeep/secretkeep/pkg/vault"
)

// maxImportSize bounds the file read by import.
const maxImportSize = 64 << 20

var (
	importSource       string
	importConflict     string
	importFolderPrefix bool
	importDryRun       bool
)

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVarP(&importSource, "source", "s", string(importer.SourceNative),
		"Source format: "+strings.Join(importer.ValidSources(), ", "))
	importCmd.Flags().StringVar(&importConflict, "on-conflict", "skip", "Conflict handling: skip, overwrite, error")
	importCmd.Flags().BoolVar(&importFolderPrefix, "folder-prefix", false, "Prefix descriptions with the source folder")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Show what would be imported without making changes")
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import secrets from another password manager",
	Long: `Import secrets from a CSV export of secretkeep or an export of another
password manager.

Items that cannot be represented are skipped and reported. A restore point
is taken before anything changes.

Examples:
  # Re-import a secretkeep CSV export
  secretkeep import secrets.csv

  # Import a Bitwarden JSON export, keeping its folders
  secretkeep import bitwarden.json --source bitwarden --folder-prefix

  # Preview a LastPass import
  secretkeep import lastpass.csv --source lastpass --dry-run

Conflict handling:
  skip       Keep secrets that already exist (default)
  overwrite  Replace existing secrets with the imported ones
  error      Abort if any description already exists`,
	Args: cobra.ExactArgs(1),
	RunE: executeImport,
}

func executeImport(cmd *cobra.Command, args []string) error {
	mode, err := vault.ParseConflictMode(strings.ToLower(importConflict))
	if err != nil {
		return err
	}
	parser, err := importer.GetParser(importer.Source(strings.ToLower(importSource)))
	if err != nil {
		return err
	}

	data, err := readImportFile(args[0])
	if err != nil {
		return err
	}
	result, err := parser.Parse(data, importer.ParseOptions{FolderPrefix: importFolderPrefix})
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", args[0], err)
	}

	for _, w := range result.Warnings {
		warnf("%s", w)
	}
	for _, s := range result.Skipped {
		fmt.Fprintf(os.Stderr, "skipped '%s': %s\n", s.OriginalName, s.Reason)
	}
	if len(result.Secrets) == 0 {
		fmt.Println("No secrets found in file")
		return nil
	}

	if importDryRun {
		fmt.Printf("Would import %d secrets:\n", len(result.Secrets))
		for _, s := range result.Secrets {
			fmt.Printf("  %s\n", s.Description)
		}
		return nil
	}

	ctx := cmd.Context()
	if err := ensureUnlocked(ctx); err != nil {
		return err
	}
	res, err := v.Import(ctx, result.Secrets, mode)
	if errors.Is(err, vault.ErrImportConflict) {
		return fmt.Errorf("%w (use --on-conflict skip or overwrite)", err)
	}
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	fmt.Printf("Imported %d secrets (%d added, %d overwritten, %d skipped)\n",
		res.Added+res.Overwritten, res.Added, res.Overwritten, res.Skipped)
	return nil
}

// readImportFile reads a regular file, refusing symlinks.
func readImportFile(path string) ([]byte, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	info, err := os.Lstat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to access file: %w", err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("security: refusing to read symlink: %s", absPath)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}
	if info.Size() > maxImportSize {
		return nil, fmt.Errorf("file too large: %s", path)
	}
	return os.ReadFile(absPath)
}
