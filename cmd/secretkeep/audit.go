package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	auditLimit        int
	auditSince        string
	auditExportFormat string
	auditExportSince  string
	auditExportUntil  string
	auditExportOutput string
	auditExportForce  bool
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd, auditVerifyCmd, auditExportCmd)

	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum number of events to show")
	auditListCmd.Flags().StringVar(&auditSince, "since", "", "Show events since duration (e.g., 24h, 7d)")

	auditExportCmd.Flags().StringVar(&auditExportFormat, "format", "json", "Output format: json, csv")
	auditExportCmd.Flags().StringVar(&auditExportSince, "since", "", "Export events since duration (e.g., 30d)")
	auditExportCmd.Flags().StringVar(&auditExportUntil, "until", "", "Export events until date (RFC 3339)")
	auditExportCmd.Flags().StringVarP(&auditExportOutput, "output", "o", "", "Output file path (default: stdout)")
	auditExportCmd.Flags().BoolVarP(&auditExportForce, "force", "f", false, "Overwrite existing file")
}

// auditCmd is the parent command for audit operations
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
	Long: `Inspect the vault's audit log.

Every operation on the vault is recorded in a tamper-evident log next to
it. Secret descriptions are stored as keyed hashes, so the log can be
shared without revealing what is in the vault.`,
}

// sinceTime turns a duration flag into a point in time; empty means no
// lower bound.
func sinceTime(flag string) (time.Time, error) {
	if flag == "" {
		return time.Time{}, nil
	}
	d, err := parseDuration(flag)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid since format: %w", err)
	}
	return time.Now().Add(-d), nil
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit log entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(cmd.Context()); err != nil {
			return err
		}
		since, err := sinceTime(auditSince)
		if err != nil {
			return err
		}

		events, err := v.Audit().ListEvents(auditLimit, since)
		if err != nil {
			return fmt.Errorf("failed to list audit events: %w", err)
		}
		if len(events) == 0 {
			fmt.Println("No audit events found")
			return nil
		}

		for _, event := range events {
			// Format: TIMESTAMP SOURCE OPERATION RESULT [SECRET]
			line := fmt.Sprintf("%s %s %s %s", event.Timestamp, event.Actor.Source, event.Operation, event.Result)
			if event.Secret != "" {
				secretDisplay := event.Secret
				if len(secretDisplay) > 16 {
					secretDisplay = secretDisplay[:16] + "..."
				}
				line += " secret:" + secretDisplay
			}
			if event.Error != nil {
				line += " error:" + event.Error.Code
			}
			fmt.Println(line)
		}

		fmt.Printf("\nTotal: %d events\n", len(events))
		return nil
	},
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify audit log HMAC chain integrity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(cmd.Context()); err != nil {
			return err
		}

		fmt.Println("Verifying audit log integrity...")
		result, err := v.Audit().Verify()
		if err != nil {
			return fmt.Errorf("failed to verify audit log: %w", err)
		}

		if !result.Valid {
			fmt.Printf("✗ Audit log verification FAILED\n")
			fmt.Printf("  Records total: %d\n", result.RecordsTotal)
			fmt.Printf("  Records verified: %d\n", result.RecordsVerified)
			fmt.Println("  Errors:")
			for _, e := range result.Errors {
				fmt.Printf("    - %s\n", e)
			}
			return errors.New("audit log integrity check failed")
		}
		fmt.Printf("✓ Audit log verified: %d records, chain intact\n", result.RecordsTotal)

		// Also output as JSON for machine parsing
		jsonResult, err := json.Marshal(result)
		if err != nil {
			return err
		}
		fmt.Printf("\nJSON: %s\n", jsonResult)
		return nil
	},
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit logs to JSON or CSV format",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if auditExportFormat != "json" && auditExportFormat != "csv" {
			return fmt.Errorf("invalid format: %s (use 'json' or 'csv')", auditExportFormat)
		}
		since, err := sinceTime(auditExportSince)
		if err != nil {
			return err
		}
		var until time.Time
		if auditExportUntil != "" {
			until, err = time.Parse(time.RFC3339, auditExportUntil)
			if err != nil {
				return fmt.Errorf("invalid until format (use RFC 3339): %w", err)
			}
		}

		if err := ensureUnlocked(cmd.Context()); err != nil {
			return err
		}
		data, err := v.Audit().Export(auditExportFormat, since, until)
		if err != nil {
			return fmt.Errorf("failed to export audit logs: %w", err)
		}

		if auditExportOutput == "" {
			_, err := os.Stdout.Write(data)
			return err
		}
		if err := writePrivateFile(auditExportOutput, data, auditExportForce); err != nil {
			return err
		}
		warnf("exported audit logs contain description hashes and operation metadata")
		fmt.Fprintf(os.Stderr, "Audit logs exported to %s\n", auditExportOutput)
		return nil
	},
}
