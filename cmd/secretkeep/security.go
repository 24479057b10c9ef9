package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/secretkeep/secretkeep/pkg/secret"
	"github.com/secretkeep/secretkeep/pkg/security"
)

// Security command flags
var (
	securityVerbose   bool
	securityJSON      bool
	securityStaleDays int
	securityLimit     int
)

// securityCmd is the root security command.
var securityCmd = &cobra.Command{
	Use:   "security",
	Short: "Analyze vault security health",
	Long: `Analyze the security health of your vault and get recommendations.

The security score is calculated from:
  - Password Strength (0-25): Average strength of passwords
  - Uniqueness (0-25): Percentage of unique passwords
  - Freshness (0-25): Percentage of passwords changed recently
  - Coverage (0-25): Percentage of secrets that have a password

Example:
  secretkeep security              # Show security score and top issues
  secretkeep security --verbose    # Show all components and suggestions
  secretkeep security --json       # Output in JSON format`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(cmd.Context()); err != nil {
			return err
		}

		score, err := newCalculator().CalculateScore(v.Secrets().Active(), true)
		if err != nil {
			return fmt.Errorf("failed to calculate security score: %w", err)
		}

		if securityJSON {
			return outputSecurityJSON(score)
		}
		outputSecurityText(score, securityVerbose)
		return nil
	},
}

func newCalculator() *security.Calculator {
	return security.NewCalculator().WithStaleAfter(time.Duration(securityStaleDays) * 24 * time.Hour)
}

// securityDuplicatesCmd lists duplicate passwords.
var securityDuplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "List duplicate passwords",
	Long:  `Show secrets that share the same password.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(cmd.Context()); err != nil {
			return err
		}

		groups, err := newCalculator().FindDuplicates(v.Secrets().Active(), true, securityLimit)
		if err != nil {
			return fmt.Errorf("failed to find duplicates: %w", err)
		}

		if len(groups) == 0 {
			fmt.Println("✅ No duplicate passwords found!")
			return nil
		}

		fmt.Printf("🔁 Duplicate Passwords (%d groups found)\n\n", len(groups))
		for i, group := range groups {
			fmt.Printf("%d. %d secrets share the same password:\n", i+1, group.Count)
			for _, d := range group.Descriptions {
				fmt.Printf("   - %s\n", d)
			}
			fmt.Println()
		}
		return nil
	},
}

// securityWeakCmd lists weak passwords.
var securityWeakCmd = &cobra.Command{
	Use:   "weak",
	Short: "List weak passwords",
	Long: `Show secrets whose password rates as weak.

A password is weak when it is shorter than 8 characters.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(cmd.Context()); err != nil {
			return err
		}

		weak := weakSecrets(v.Secrets().Active(), securityLimit)
		if len(weak) == 0 {
			fmt.Println("✅ No weak passwords found!")
			return nil
		}

		fmt.Printf("💪 Weak Passwords (%d found)\n\n", len(weak))
		for i, s := range weak {
			fmt.Printf("%d. %s\n", i+1, s.Description)
			fmt.Printf("   Password is weak (%d characters)\n\n", len([]rune(s.Password)))
		}
		return nil
	},
}

// weakSecrets returns up to limit secrets with a weak password. A limit of
// zero or less means no limit.
func weakSecrets(active []secret.Secret, limit int) []secret.Secret {
	var out []secret.Secret
	for _, s := range active {
		if s.Password == "" || security.Strength(s.Password) != security.PasswordWeak {
			continue
		}
		out = append(out, s)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// securityStaleCmd lists passwords that have not changed for a long time.
var securityStaleCmd = &cobra.Command{
	Use:   "stale",
	Short: "List passwords not changed recently",
	Long: `Show secrets whose last change is older than --stale-days.

Example:
  secretkeep security stale                  # Older than a year
  secretkeep security stale --stale-days=90  # Older than 90 days`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(cmd.Context()); err != nil {
			return err
		}

		cutoff := time.Now().AddDate(0, 0, -securityStaleDays)
		var stale []secret.Secret
		for _, s := range v.Secrets().Active() {
			if mod := s.LastModified(); !mod.IsZero() && mod.Before(cutoff) {
				stale = append(stale, s)
			}
		}

		if len(stale) == 0 {
			fmt.Printf("✅ No passwords older than %d days!\n", securityStaleDays)
			return nil
		}

		fmt.Printf("⏰ Passwords Not Changed Within %d Days (%d found)\n\n", securityStaleDays, len(stale))
		for i, s := range stale {
			fmt.Printf("%d. %s - last changed %s\n", i+1, s.Description, humanize.Time(s.LastModified()))
		}
		return nil
	},
}

// outputSecurityJSON outputs the security score as JSON.
func outputSecurityJSON(score *security.SecurityScore) error {
	data, err := json.MarshalIndent(score, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// scoreRating maps an overall score to a label and symbol.
func scoreRating(overall int) (rating, emoji string) {
	switch {
	case overall >= 90:
		return "Excellent", "🔒"
	case overall >= 70:
		return "Good", "🔒"
	case overall >= 50:
		return "Fair", "⚠️"
	default:
		return "Needs Attention", "🚨"
	}
}

// outputSecurityText outputs the security score as formatted text.
func outputSecurityText(score *security.SecurityScore, verbose bool) {
	rating, emoji := scoreRating(score.Overall)
	fmt.Printf("%s Security Score: %d/100 (%s)\n\n", emoji, score.Overall, rating)

	fmt.Println("Components:")
	fmt.Printf("  Password Strength: %d/25 %s\n", score.Components.StrengthScore, progressBar(score.Components.StrengthScore, 25))
	fmt.Printf("  Uniqueness:        %d/25 %s\n", score.Components.UniquenessScore, progressBar(score.Components.UniquenessScore, 25))
	fmt.Printf("  Freshness:         %d/25 %s\n", score.Components.FreshnessScore, progressBar(score.Components.FreshnessScore, 25))
	fmt.Printf("  Coverage:          %d/25 %s\n", score.Components.CoverageScore, progressBar(score.Components.CoverageScore, 25))
	fmt.Println()

	issues := score.Issues
	if !verbose && len(issues) > 5 {
		issues = issues[:5]
	}
	if len(issues) > 0 {
		fmt.Printf("⚠️  Top Issues (%d of %d):\n", len(issues), len(score.Issues))
		for i, issue := range issues {
			typeLabel := strings.ToUpper(string(issue.Type))
			names := ""
			if issue.Description != "" {
				names = fmt.Sprintf(" %q", issue.Description)
			} else if len(issue.Descriptions) > 0 {
				names = " " + strings.Join(issue.Descriptions, ", ")
			}
			fmt.Printf("  %d. [%s]%s: %s\n", i+1, typeLabel, names, issue.Message)
		}
		fmt.Println()
	}

	if len(score.Suggestions) > 0 && verbose {
		fmt.Println("💡 Suggestions:")
		for _, suggestion := range score.Suggestions {
			fmt.Printf("  - %s\n", suggestion)
		}
		fmt.Println()
	}
}

// progressBar creates a simple ASCII progress bar.
func progressBar(value, maxVal int) string {
	const width = 20
	if value < 0 {
		value = 0
	}
	if value > maxVal {
		value = maxVal
	}
	filled := value * width / maxVal
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

func init() {
	rootCmd.AddCommand(securityCmd)

	securityCmd.AddCommand(securityDuplicatesCmd)
	securityCmd.AddCommand(securityWeakCmd)
	securityCmd.AddCommand(securityStaleCmd)

	securityCmd.Flags().BoolVarP(&securityVerbose, "verbose", "v", false, "Show all issues and suggestions")
	securityCmd.Flags().BoolVar(&securityJSON, "json", false, "Output in JSON format")
	securityCmd.PersistentFlags().IntVar(&securityStaleDays, "stale-days", 365, "Days after which an unchanged password is stale")

	securityDuplicatesCmd.Flags().IntVar(&securityLimit, "limit", 0, "Maximum number of groups to show (0 for all)")
	securityWeakCmd.Flags().IntVar(&securityLimit, "limit", 0, "Maximum number of secrets to show (0 for all)")
}
