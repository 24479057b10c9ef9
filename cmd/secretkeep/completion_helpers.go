package main

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/secretkeep/secretkeep/pkg/crypto"
	"github.com/secretkeep/secretkeep/pkg/importer"
	"github.com/secretkeep/secretkeep/pkg/secret"
)

// completionEnv opts in to completing secret descriptions.
const completionEnv = "SECRETKEEP_COMPLETION_ENABLED"

// isDynamicCompletionEnabled checks if dynamic completion is opt-in enabled.
// Dynamic completion is disabled by default to prevent vault unlock prompts
// during tab completion.
func isDynamicCompletionEnabled() bool {
	return os.Getenv(completionEnv) == "1"
}

// unlockForCompletion opens the vault with SECRETKEEP_PASSWORD. It never
// prompts.
func unlockForCompletion(cmd *cobra.Command) bool {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	// Completion may run without the root pre-run hook.
	if v == nil && setup(cmd, nil) != nil {
		return false
	}
	if v == nil {
		return false
	}
	if !v.IsLocked() {
		return true
	}
	password := []byte(os.Getenv(passwordEnv))
	if len(password) == 0 {
		return false
	}
	defer crypto.SecureWipe(password)
	if v.RemainingCooldown(ctx) > 0 {
		return false
	}
	return v.Unlock(ctx, password) == nil
}

// completeDescriptions provides secret description completion (opt-in only).
func completeDescriptions(cmd *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if !isDynamicCompletionEnabled() {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	if !unlockForCompletion(cmd) {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return descriptionsWithPrefix(v.Secrets().Active(), toComplete), cobra.ShellCompDirectiveNoFileComp
}

// completeDeletedDescriptions completes tombstones for undelete.
func completeDeletedDescriptions(cmd *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if !isDynamicCompletionEnabled() {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	if !unlockForCompletion(cmd) {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return descriptionsWithPrefix(v.Secrets().Deleted(), toComplete), cobra.ShellCompDirectiveNoFileComp
}

// descriptionsWithPrefix returns the descriptions starting with prefix,
// ignoring case.
func descriptionsWithPrefix(secrets []secret.Secret, prefix string) []string {
	lowerPrefix := strings.ToLower(prefix)
	var out []string
	for _, s := range secrets {
		if strings.HasPrefix(strings.ToLower(s.Description), lowerPrefix) {
			out = append(out, s.Description)
		}
	}
	return out
}

func fixedCompletion(values ...string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return values, cobra.ShellCompDirectiveNoFileComp
	}
}

// registerCompletionFunctions registers ValidArgsFunction for commands that support
// dynamic completion.
func registerCompletionFunctions() {
	for _, cmd := range []*cobra.Command{getCmd, editCmd, deleteCmd, logCmd} {
		cmd.ValidArgsFunction = completeDescriptions
	}
	undeleteCmd.ValidArgsFunction = completeDeletedDescriptions

	_ = getCmd.RegisterFlagCompletionFunc("field", fixedCompletion(fieldPassword, fieldUsername, fieldEmail, fieldNote))
	_ = exportCmd.RegisterFlagCompletionFunc("format", fixedCompletion(exportFormats...))
	_ = importCmd.RegisterFlagCompletionFunc("source", fixedCompletion(importer.ValidSources()...))
	_ = importCmd.RegisterFlagCompletionFunc("on-conflict", fixedCompletion("skip", "overwrite", "error"))
	_ = auditExportCmd.RegisterFlagCompletionFunc("format", fixedCompletion("json", "csv"))
}
