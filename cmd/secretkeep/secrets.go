package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/secretkeep/secretkeep/internal/cli"
	"github.com/secretkeep/secretkeep/pkg/crypto"
	"github.com/secretkeep/secretkeep/pkg/secret"
	"github.com/secretkeep/secretkeep/pkg/security"
	"github.com/secretkeep/secretkeep/pkg/vault"
)

// Secret fields selectable with --field.
const (
	fieldPassword = "password"
	fieldUsername = "username"
	fieldEmail    = "email"
	fieldNote     = "note"
)

var (
	addUsername string
	addEmail    string
	addNote     string
	addGenerate bool

	getField string
	getAll   bool
	getCopy  bool

	listLong bool

	editDescription string
	editUsername    string
	editEmail       string
	editNote        string
	editPassword    bool
	editGenerate    bool

	deleteForce bool
	purgeForce  bool
)

func init() {
	rootCmd.AddCommand(addCmd, getCmd, listCmd, editCmd, deleteCmd, undeleteCmd, deletedCmd, purgeCmd, normalizeCmd, logCmd)

	addCmd.Flags().StringVarP(&addUsername, "username", "u", "", "Username")
	addCmd.Flags().StringVarP(&addEmail, "email", "e", "", "Email address")
	addCmd.Flags().StringVarP(&addNote, "note", "n", "", "Free-form note")
	addCmd.Flags().BoolVarP(&addGenerate, "generate", "g", false, "Generate a random password instead of prompting")

	getCmd.Flags().StringVarP(&getField, "field", "f", fieldPassword, "Field to print: password, username, email or note")
	getCmd.Flags().BoolVarP(&getAll, "all", "a", false, "Print every field")
	getCmd.Flags().BoolVarP(&getCopy, "copy", "c", false, "Copy the field to the clipboard instead of printing it")

	listCmd.Flags().BoolVarP(&listLong, "long", "l", false, "Show username and last modification")

	editCmd.Flags().StringVarP(&editDescription, "description", "d", "", "Rename the secret")
	editCmd.Flags().StringVarP(&editUsername, "username", "u", "", "New username")
	editCmd.Flags().StringVarP(&editEmail, "email", "e", "", "New email address")
	editCmd.Flags().StringVarP(&editNote, "note", "n", "", "New note")
	editCmd.Flags().BoolVarP(&editPassword, "password", "p", false, "Prompt for a new password")
	editCmd.Flags().BoolVarP(&editGenerate, "generate", "g", false, "Generate a new random password")

	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Skip confirmation prompt")
	purgeCmd.Flags().BoolVarP(&purgeForce, "force", "f", false, "Skip confirmation prompt")
}

var addCmd = &cobra.Command{
	Use:   "add <description>",
	Short: "Add a secret",
	Long: `Add a secret under a description.

The description is the secret's key: secrets are listed in description
order and two active secrets cannot share one. Use "/" to group secrets,
for example "Work/GitHub".

Examples:
  secretkeep add Bank -u alice
  secretkeep add Work/GitHub -u alice -e alice@example.com --generate`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureUnlocked(ctx); err != nil {
			return err
		}

		description := args[0]
		if _, err := v.Secrets().Find(description); err == nil {
			return fmt.Errorf("secret '%s' already exists (use 'secretkeep edit')", description)
		}

		password, err := newSecretPassword(addGenerate)
		if err != nil {
			return err
		}

		s := secret.Secret{
			Description: description,
			Username:    addUsername,
			Password:    password,
			Email:       addEmail,
			Note:        addNote,
		}
		if _, err := v.Add(ctx, s); err != nil {
			return fmt.Errorf("failed to add secret: %w", err)
		}

		fmt.Printf("Secret '%s' added\n", description)
		if addGenerate {
			fmt.Fprintln(os.Stderr, "A random password was generated (use 'secretkeep get' to view it)")
		}
		return nil
	},
}

// newSecretPassword generates or prompts for a secret's password. A prompted
// password may be empty.
func newSecretPassword(generate bool) (string, error) {
	if generate {
		return security.Generate(security.DefaultGeneratorOptions())
	}
	password, err := readPassword("Password (empty for none): ")
	if err != nil {
		return "", err
	}
	defer crypto.SecureWipe(password)
	return string(password), nil
}

var getCmd = &cobra.Command{
	Use:   "get <description>",
	Short: "Print a secret",
	Long: `Print a field of a secret, the password by default.

Every get is recorded in the secret's access log.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureUnlocked(ctx); err != nil {
			return err
		}
		pos, err := findSecret(args[0])
		if err != nil {
			return err
		}

		s, err := v.Reveal(ctx, pos)
		if err != nil && !errors.Is(err, vault.ErrPersistence) {
			return err
		}
		if err != nil {
			warnf("access not recorded: %v", err)
		}

		if getAll {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Description:\t%s\n", s.Description)
			fmt.Fprintf(w, "Username:\t%s\n", s.Username)
			fmt.Fprintf(w, "Password:\t%s\n", s.Password)
			fmt.Fprintf(w, "Email:\t%s\n", s.Email)
			if s.Note != "" {
				fmt.Fprintf(w, "Note:\t%s\n", s.Note)
			}
			return w.Flush()
		}

		value, err := secretField(s, getField)
		if err != nil {
			return err
		}
		if getCopy {
			if err := copyToClipboard(value); err != nil {
				return fmt.Errorf("failed to copy to clipboard: %w", err)
			}
			fmt.Fprintf(os.Stderr, "%s of '%s' copied to clipboard\n", getField, s.Description)
			return nil
		}
		fmt.Println(value)
		return nil
	},
}

func secretField(s secret.Secret, field string) (string, error) {
	switch field {
	case fieldPassword:
		return s.Password, nil
	case fieldUsername:
		return s.Username, nil
	case fieldEmail:
		return s.Email, nil
	case fieldNote:
		return s.Note, nil
	}
	return "", fmt.Errorf("unknown field '%s' (use password, username, email or note)", field)
}

var listCmd = &cobra.Command{
	Use:   "list [query]",
	Short: "List secrets",
	Long: `List active secrets in description order.

A query matches descriptions that start with it. A query starting with "."
searches descriptions, usernames, emails and notes for the rest of the
query. Matching ignores case.

Examples:
  secretkeep list
  secretkeep list work/
  secretkeep list .example.com`,
	Aliases: []string{"ls"},
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(cmd.Context()); err != nil {
			return err
		}
		query := ""
		if len(args) == 1 {
			query = args[0]
		}

		secrets := v.Secrets().Filter(query)
		if len(secrets) == 0 {
			if query == "" {
				fmt.Println("No secrets stored")
			} else {
				fmt.Printf("No secrets match '%s'\n", query)
			}
			return nil
		}
		if !listLong {
			for _, s := range secrets {
				fmt.Println(s.Description)
			}
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DESCRIPTION\tUSERNAME\tMODIFIED")
		for _, s := range secrets {
			modified := "-"
			if t := s.LastModified(); !t.IsZero() {
				modified = humanize.Time(t)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.Description, s.Username, modified)
		}
		return w.Flush()
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <description>",
	Short: "Change a secret",
	Long: `Change the fields of a secret. Only the given flags are applied.

Examples:
  secretkeep edit Bank -u bob
  secretkeep edit Bank --password
  secretkeep edit Bank -d "Bank/Checking"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureUnlocked(ctx); err != nil {
			return err
		}
		pos, err := findSecret(args[0])
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		if editPassword && editGenerate {
			return errors.New("--password and --generate cannot be used together")
		}
		changed := editPassword || editGenerate
		for _, name := range []string{"description", "username", "email", "note"} {
			changed = changed || flags.Changed(name)
		}
		if !changed {
			return errors.New("nothing to change (see 'secretkeep edit --help')")
		}
		if flags.Changed("description") && editDescription != args[0] {
			if _, err := v.Secrets().Find(editDescription); err == nil {
				return fmt.Errorf("secret '%s' already exists", editDescription)
			}
		}

		var password string
		if editPassword || editGenerate {
			if password, err = newSecretPassword(editGenerate); err != nil {
				return err
			}
		}

		newPos, err := v.Update(ctx, pos, func(s *secret.Secret) {
			if flags.Changed("description") {
				s.Description = editDescription
			}
			if flags.Changed("username") {
				s.Username = editUsername
			}
			if flags.Changed("email") {
				s.Email = editEmail
			}
			if flags.Changed("note") {
				s.Note = editNote
			}
			if editPassword || editGenerate {
				s.Password = password
			}
		})
		if err != nil {
			return fmt.Errorf("failed to update secret: %w", err)
		}

		s, err := v.Secrets().At(newPos)
		if err != nil {
			return err
		}
		fmt.Printf("Secret '%s' updated\n", s.Description)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <description|pattern>...",
	Short: "Delete secrets",
	Long: `Delete secrets. Deleted secrets can be brought back with undelete
until they are purged.

Glob patterns select several secrets; "*" does not cross "/".

Examples:
  secretkeep delete Bank
  secretkeep delete "Work/*"`,
	Aliases: []string{"rm"},
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureUnlocked(ctx); err != nil {
			return err
		}

		active := v.Secrets().Active()
		descriptions := make([]string, len(active))
		for i, s := range active {
			descriptions[i] = s.Description
		}
		targets, err := cli.ExpandPatterns(args, descriptions)
		if err != nil {
			return err
		}

		if len(targets) > 1 && !deleteForce {
			for _, d := range targets {
				fmt.Fprintf(os.Stderr, "  %s\n", d)
			}
			if !confirm(fmt.Sprintf("Delete %d secrets?", len(targets))) {
				fmt.Println("Aborted")
				return nil
			}
		}

		for _, d := range targets {
			// Positions shift after every delete.
			pos, err := findSecret(d)
			if err != nil {
				return err
			}
			if _, err := v.Delete(ctx, pos); err != nil {
				return fmt.Errorf("failed to delete '%s': %w", d, err)
			}
			fmt.Printf("Secret '%s' deleted\n", d)
		}
		return nil
	},
}

var undeleteCmd = &cobra.Command{
	Use:   "undelete <description>",
	Short: "Bring back a deleted secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureUnlocked(ctx); err != nil {
			return err
		}
		if _, err := v.Secrets().Find(args[0]); err == nil {
			return fmt.Errorf("an active secret '%s' already exists", args[0])
		}
		if _, err := v.Undelete(ctx, args[0]); err != nil {
			if errors.Is(err, secret.ErrNotFound) {
				return fmt.Errorf("no deleted secret '%s'", args[0])
			}
			return err
		}
		fmt.Printf("Secret '%s' restored\n", args[0])
		return nil
	},
}

var deletedCmd = &cobra.Command{
	Use:   "deleted",
	Short: "List deleted secrets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(cmd.Context()); err != nil {
			return err
		}
		deleted := v.Secrets().Deleted()
		if len(deleted) == 0 {
			fmt.Println("No deleted secrets")
			return nil
		}
		for _, s := range deleted {
			fmt.Println(s.Description)
		}
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Permanently remove deleted secrets",
	Long: `Permanently remove deleted secrets.

Purged secrets are no longer propagated as deletions by sync, so another
replica still holding them will bring them back.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureUnlocked(ctx); err != nil {
			return err
		}
		count := len(v.Secrets().Deleted())
		if count == 0 {
			fmt.Println("No deleted secrets")
			return nil
		}
		if !purgeForce && !confirm(fmt.Sprintf("Permanently remove %d deleted secrets?", count)) {
			fmt.Println("Aborted")
			return nil
		}
		n, err := v.Purge(ctx)
		if err != nil {
			return fmt.Errorf("failed to purge: %w", err)
		}
		fmt.Printf("Purged %d secrets\n", n)
		return nil
	},
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Trim descriptions and make them unique",
	Long: `Trim surrounding whitespace from descriptions and rename duplicates
so every description is unique. Sync refuses to run until this is done.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureUnlocked(ctx); err != nil {
			return err
		}
		changed, err := v.Normalize(ctx)
		if err != nil {
			return fmt.Errorf("failed to normalize: %w", err)
		}
		if !changed {
			fmt.Println("Descriptions are already normalized")
			return nil
		}
		fmt.Println("Descriptions normalized")
		return nil
	},
}

var logCmd = &cobra.Command{
	Use:   "log <description>",
	Short: "Show the access log of a secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(cmd.Context()); err != nil {
			return err
		}
		pos, err := findSecret(args[0])
		if err != nil {
			return err
		}
		s, err := v.Secrets().At(pos)
		if err != nil {
			return err
		}
		if len(s.AccessLog) == 0 {
			fmt.Println("No access recorded")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ACTION\tTIME\t")
		for i := len(s.AccessLog) - 1; i >= 0; i-- {
			e := s.AccessLog[i]
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.Type, e.At().Format(time.DateTime), humanize.Time(e.At()))
		}
		return w.Flush()
	},
}
