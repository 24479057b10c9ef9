package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/secretkeep/secretkeep/pkg/security"
)

const (
	defaultPasswordCount = 1
	maxPasswordCount     = 100
)

// Generate command flags
var (
	generateLength      int
	generateCount       int
	generateNoSymbols   bool
	generateNoNumbers   bool
	generateNoUppercase bool
	generateNoLowercase bool
	generateExclude     string
	generateCopy        bool
)

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().IntVarP(&generateLength, "length", "l", security.DefaultGeneratedLength, "Password length (8-256)")
	generateCmd.Flags().IntVarP(&generateCount, "count", "n", defaultPasswordCount, "Number of passwords to generate (1-100)")
	generateCmd.Flags().BoolVar(&generateNoSymbols, "no-symbols", false, "Exclude symbols")
	generateCmd.Flags().BoolVar(&generateNoNumbers, "no-numbers", false, "Exclude numbers")
	generateCmd.Flags().BoolVar(&generateNoUppercase, "no-uppercase", false, "Exclude uppercase letters")
	generateCmd.Flags().BoolVar(&generateNoLowercase, "no-lowercase", false, "Exclude lowercase letters")
	generateCmd.Flags().StringVar(&generateExclude, "exclude", "", "Characters to exclude")
	generateCmd.Flags().BoolVarP(&generateCopy, "copy", "c", false, "Copy first password to clipboard (accessible to all processes)")
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate secure random passwords",
	Long: `Generate cryptographically secure random passwords.

Examples:
  # Generate a 24-character password (default)
  secretkeep generate

  # Generate a 32-character password without symbols
  secretkeep generate -l 32 --no-symbols

  # Generate 5 passwords
  secretkeep generate -n 5

  # Generate and copy to clipboard
  secretkeep generate -c

  # Generate password excluding ambiguous characters
  secretkeep generate --exclude "0O1lI"`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationNoVault: "true"},
	RunE:        executeGenerate,
}

func executeGenerate(cmd *cobra.Command, args []string) error {
	opts, err := generatorOptions()
	if err != nil {
		return err
	}

	passwords := make([]string, generateCount)
	for i := range passwords {
		password, err := security.Generate(opts)
		if err != nil {
			if errors.Is(err, security.ErrEmptyCharset) {
				return errors.New("character set is empty: adjust flags to include at least one character type")
			}
			return fmt.Errorf("failed to generate password: %w", err)
		}
		passwords[i] = password
	}

	for _, password := range passwords {
		fmt.Println(password)
	}

	if generateCopy {
		if err := copyToClipboard(passwords[0]); err != nil {
			warnf("failed to copy to clipboard: %v", err)
		} else {
			fmt.Fprintln(os.Stderr, "Password copied to clipboard")
		}
	}
	return nil
}

// generatorOptions validates the generate flags.
func generatorOptions() (security.GeneratorOptions, error) {
	if generateCount < 1 {
		return security.GeneratorOptions{}, errors.New("count must be at least 1")
	}
	if generateCount > maxPasswordCount {
		return security.GeneratorOptions{}, fmt.Errorf("count must be at most %d", maxPasswordCount)
	}
	opts := security.GeneratorOptions{
		Length:      generateLength,
		NoLowercase: generateNoLowercase,
		NoUppercase: generateNoUppercase,
		NoDigits:    generateNoNumbers,
		NoSymbols:   generateNoSymbols,
		Exclude:     generateExclude,
	}
	return opts, opts.Validate()
}

// copyToClipboard copies text to the system clipboard
func copyToClipboard(text string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("pbcopy")
	case "linux":
		if _, err := exec.LookPath("wl-copy"); err == nil && os.Getenv("WAYLAND_DISPLAY") != "" {
			cmd = exec.Command("wl-copy")
		} else if _, err := exec.LookPath("xclip"); err == nil {
			cmd = exec.Command("xclip", "-selection", "clipboard")
		} else if _, err := exec.LookPath("xsel"); err == nil {
			cmd = exec.Command("xsel", "--clipboard", "--input")
		} else {
			return errors.New("clipboard tool not found: install xclip, xsel or wl-clipboard")
		}
	case "windows":
		cmd = exec.Command("clip")
	default:
		return fmt.Errorf("clipboard not supported on %s", runtime.GOOS)
	}

	cmd.Stdin = strings.NewReader(text)
	return cmd.Run()
}
