package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/secretkeep/secretkeep/internal/cli"
	"github.com/secretkeep/secretkeep/pkg/importer"
	"github.com/secretkeep/secretkeep/pkg/secret"
)

// Export format constants
const (
	formatCSV  = "csv"
	formatJSON = "json"
	formatYAML = "yaml"
)

var exportFormats = []string{formatCSV, formatJSON, formatYAML}

// Export command flags
var (
	exportFormat string
	exportOutput string
	exportKeys   []string
	exportForce  bool
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&exportFormat, "format", formatCSV, "Output format: csv, json, yaml")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file path (default: stdout)")
	exportCmd.Flags().StringSliceVarP(&exportKeys, "key", "k", nil, "Descriptions to export (glob pattern supported)")
	exportCmd.Flags().BoolVarP(&exportForce, "force", "f", false, "Overwrite existing file")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export secrets in plain text",
	Long: `Export active secrets in plain text.

The csv format can be read back with 'secretkeep import --source csv'.
Exports are not encrypted; use 'secretkeep backup create -o' for an
encrypted copy. Every exported secret is recorded in its access log.

Examples:
  # Export everything to stdout as CSV
  secretkeep export

  # Export one folder as YAML
  secretkeep export -k "Work/*" --format yaml -o work.yaml`,
	Args: cobra.NoArgs,
	RunE: executeExport,
}

func executeExport(cmd *cobra.Command, args []string) error {
	exportFormat = strings.ToLower(exportFormat)
	if !isExportFormat(exportFormat) {
		return fmt.Errorf("invalid format '%s': must be one of %s", exportFormat, strings.Join(exportFormats, ", "))
	}
	for _, p := range exportKeys {
		if err := cli.ValidatePattern(p); err != nil {
			return err
		}
	}
	if exportOutput != "" && !exportForce {
		if _, err := os.Stat(exportOutput); err == nil {
			return fmt.Errorf("output file already exists: %s (use --force to overwrite)", exportOutput)
		}
	}

	ctx := cmd.Context()
	if err := ensureUnlocked(ctx); err != nil {
		return err
	}

	secrets, err := v.Export(ctx)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	secrets = selectSecrets(secrets, exportKeys)
	if len(secrets) == 0 {
		return fmt.Errorf("no secrets to export")
	}

	data, err := encodeExport(secrets, exportFormat)
	if err != nil {
		return err
	}

	if exportOutput == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := writePrivateFile(exportOutput, data, exportForce); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Exported %d secrets to %s\n", len(secrets), exportOutput)
	warnf("the file contains plain text passwords")
	return nil
}

func isExportFormat(f string) bool {
	for _, known := range exportFormats {
		if f == known {
			return true
		}
	}
	return false
}

// selectSecrets keeps the secrets matching any pattern; no patterns keeps
// everything.
func selectSecrets(secrets []secret.Secret, patterns []string) []secret.Secret {
	if len(patterns) == 0 {
		return secrets
	}
	var out []secret.Secret
	for _, s := range secrets {
		if ok, _ := cli.MatchAny(patterns, s.Description); ok {
			out = append(out, s)
		}
	}
	return out
}

// exportedSecret is the json and yaml shape of a secret. The access log is
// not exported.
type exportedSecret struct {
	Description string `json:"description" yaml:"description"`
	Username    string `json:"username,omitempty" yaml:"username,omitempty"`
	Password    string `json:"password,omitempty" yaml:"password,omitempty"`
	Email       string `json:"email,omitempty" yaml:"email,omitempty"`
	Note        string `json:"note,omitempty" yaml:"note,omitempty"`
}

func encodeExport(secrets []secret.Secret, format string) ([]byte, error) {
	if format == formatCSV {
		var buf bytes.Buffer
		if err := importer.WriteCSV(&buf, secrets); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	out := make([]exportedSecret, len(secrets))
	for i, s := range secrets {
		out[i] = exportedSecret{
			Description: s.Description,
			Username:    s.Username,
			Password:    s.Password,
			Email:       s.Email,
			Note:        s.Note,
		}
	}
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode JSON: %w", err)
		}
		return append(data, '\n'), nil
	case formatYAML:
		data, err := yaml.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("failed to encode YAML: %w", err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("invalid format '%s'", format)
}
