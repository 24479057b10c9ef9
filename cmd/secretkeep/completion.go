package main

import (
	"os"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate completion script for your shell",
	Long: `To load completions:

Bash:
  $ source <(secretkeep completion bash)

  # To load for each session (Linux):
  $ secretkeep completion bash > ~/.local/share/bash-completion/completions/secretkeep

  # To load for each session (macOS with Homebrew):
  $ secretkeep completion bash > $(brew --prefix)/etc/bash_completion.d/secretkeep

Zsh:
  # Ensure completion is enabled:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # Generate completion:
  $ secretkeep completion zsh > ~/.zsh/completions/_secretkeep
  # (create ~/.zsh/completions if needed, add to fpath in .zshrc)

Fish:
  $ secretkeep completion fish > ~/.config/fish/completions/secretkeep.fish

PowerShell:
  PS> secretkeep completion powershell >> $PROFILE

Dynamic completion (secret descriptions):
  Set SECRETKEEP_COMPLETION_ENABLED=1 to complete secret descriptions.
  The vault is opened with SECRETKEEP_PASSWORD; without it descriptions
  are not completed.
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	Annotations:           map[string]string{annotationNoVault: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(os.Stdout)
		case "zsh":
			return cmd.Root().GenZshCompletion(os.Stdout)
		case "fish":
			return cmd.Root().GenFishCompletion(os.Stdout, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
