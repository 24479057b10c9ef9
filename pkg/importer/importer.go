// Package importer reads exports of other password managers and the native
// CSV format into secrets. Supports native CSV, 1Password CSV, Bitwarden
// JSON, and LastPass CSV.
//
// Data a secret has no field for (URLs, TOTP seeds, folders, card and
// identity details, custom fields) is appended to the note as
// "label: value" lines.
package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"html"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/secretkeep/secretkeep/pkg/secret"
	"github.com/secretkeep/secretkeep/pkg/vault"
)

// Source represents the source password manager format.
type Source string

const (
	SourceNative    Source = "csv"
	Source1Password Source = "1password"
	SourceBitwarden Source = "bitwarden"
	SourceLastPass  Source = "lastpass"
)

// ImportResult contains the results of an import operation.
type ImportResult struct {
	// Secrets are the successfully parsed secrets, with unique descriptions.
	Secrets []secret.Secret

	// Warnings are non-fatal issues encountered during parsing.
	Warnings []string

	// Skipped are items that were skipped with reasons.
	Skipped []SkippedItem
}

// SkippedItem represents an item that was skipped during import.
type SkippedItem struct {
	OriginalName string
	Reason       string
}

// Parser is the interface for import format parsers.
type Parser interface {
	// Parse parses the input data and returns imported secrets.
	Parse(data []byte, opts ParseOptions) (*ImportResult, error)

	// Source returns the source type for this parser.
	Source() Source
}

// ParseOptions contains options for parsing.
type ParseOptions struct {
	// FolderPrefix prepends the source folder to descriptions ("Work/GitHub").
	FolderPrefix bool
}

// ParseError reports malformed input at a line of the source file.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("importer: line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var errMissingColumn = errors.New("missing required column")

// SanitizeDescription turns a source item name into a description: NFC
// normalized, control characters and whitespace runs collapsed to a single
// space, trimmed and cut to vault.MaxDescriptionLength bytes on a rune
// boundary.
func SanitizeDescription(name string) string {
	if name == "" {
		return ""
	}
	name = norm.NFC.String(name)

	var b strings.Builder
	space := false
	for _, r := range name {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return truncate(b.String(), vault.MaxDescriptionLength)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	s = s[:max]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return strings.TrimSpace(s)
}

// DeduplicateDescriptions makes descriptions unique within an import by
// appending secret.DuplicateSuffix and a counter to repeats.
func DeduplicateDescriptions(secrets []secret.Secret) {
	taken := make(map[string]bool, len(secrets))
	for _, s := range secrets {
		taken[s.Description] = true
	}
	seen := make(map[string]bool, len(secrets))
	for i := range secrets {
		base := secrets[i].Description
		if !seen[base] {
			seen[base] = true
			continue
		}
		for n := 1; ; n++ {
			candidate := fmt.Sprintf("%s%s%d", base, secret.DuplicateSuffix, n)
			if !taken[candidate] {
				secrets[i].Description = candidate
				taken[candidate] = true
				seen[candidate] = true
				break
			}
		}
	}
}

// GenerateFallbackDescription names an item that has no name of its own:
// the URL's hostname when there is one, otherwise "Imported item N".
func GenerateFallbackDescription(url string, counter int) string {
	if url != "" {
		if hostname := extractHostname(url); hostname != "" {
			return hostname
		}
	}
	return fmt.Sprintf("Imported item %d", counter)
}

// extractHostname extracts the hostname from a URL.
func extractHostname(urlStr string) string {
	urlStr = strings.TrimPrefix(urlStr, "https://")
	urlStr = strings.TrimPrefix(urlStr, "http://")

	if idx := strings.IndexAny(urlStr, "/?#"); idx != -1 {
		urlStr = urlStr[:idx]
	}
	if idx := strings.LastIndex(urlStr, "@"); idx != -1 {
		urlStr = urlStr[idx+1:]
	}
	if idx := strings.Index(urlStr, ":"); idx != -1 {
		urlStr = urlStr[:idx]
	}
	return strings.TrimPrefix(urlStr, "www.")
}

// DecodeHTMLEntities decodes HTML entities found in LastPass exports.
func DecodeHTMLEntities(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	return html.UnescapeString(s)
}

// IsEmptyOrWhitespace checks if a string is empty or contains only whitespace.
func IsEmptyOrWhitespace(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// noteBuilder collects the note body plus extra labelled values.
type noteBuilder struct {
	body   string
	extras []string
	// data is set once a value other than context was added.
	data bool
}

func (n *noteBuilder) add(label, value string) {
	if n.addContext(label, value) {
		n.data = true
	}
}

// addContext adds a value that does not make an item worth importing on
// its own, such as a URL or folder.
func (n *noteBuilder) addContext(label, value string) bool {
	if IsEmptyOrWhitespace(value) {
		return false
	}
	n.extras = append(n.extras, label+": "+strings.TrimSpace(value))
	return true
}

func (n *noteBuilder) String() string {
	body := strings.TrimSpace(n.body)
	if len(n.extras) == 0 {
		return body
	}
	extras := strings.Join(n.extras, "\n")
	if body == "" {
		return extras
	}
	return body + "\n\n" + extras
}

// item is what every parser extracts from one source record.
type item struct {
	name     string
	folder   string
	url      string
	username string
	password string
	email    string
	note     noteBuilder
}

func (it *item) empty() bool {
	return IsEmptyOrWhitespace(it.username) && IsEmptyOrWhitespace(it.password) &&
		IsEmptyOrWhitespace(it.email) && IsEmptyOrWhitespace(it.note.body) && !it.note.data
}

// collector turns items into validated secrets.
type collector struct {
	result  *ImportResult
	opts    ParseOptions
	counter int
}

func newCollector(opts ParseOptions) *collector {
	return &collector{
		result: &ImportResult{
			Secrets:  make([]secret.Secret, 0),
			Warnings: make([]string, 0),
			Skipped:  make([]SkippedItem, 0),
		},
		opts:    opts,
		counter: 1,
	}
}

func (c *collector) warn(format string, args ...any) {
	c.result.Warnings = append(c.result.Warnings, fmt.Sprintf(format, args...))
}

func (c *collector) skip(name, reason string) {
	c.result.Skipped = append(c.result.Skipped, SkippedItem{OriginalName: name, Reason: reason})
}

// add validates it and appends the resulting secret. Items without any
// data, or that exceed the vault's limits, are skipped.
func (c *collector) add(it *item) {
	if it.empty() {
		c.skip(it.name, "no useful data")
		return
	}

	desc := SanitizeDescription(it.name)
	if desc == "" {
		desc = SanitizeDescription(GenerateFallbackDescription(it.url, c.counter))
		c.counter++
	}
	if c.opts.FolderPrefix {
		if folder := SanitizeDescription(it.folder); folder != "" {
			desc = truncate(folder+"/"+desc, vault.MaxDescriptionLength)
		}
	}

	s := secret.Secret{
		Description: desc,
		Username:    strings.TrimSpace(it.username),
		Password:    it.password,
		Email:       strings.TrimSpace(it.email),
		Note:        it.note.String(),
	}
	if err := vault.ValidateSecret(s); err != nil {
		c.skip(it.name, err.Error())
		return
	}
	c.result.Secrets = append(c.result.Secrets, s)
}

func (c *collector) done() *ImportResult {
	DeduplicateDescriptions(c.result.Secrets)
	return c.result
}

// csvOptions describe a header-based CSV export.
type csvOptions struct {
	// required column, compared after key().
	required string
	// key maps a header cell to the lookup key.
	key func(string) string
	// strict turns row errors into a *ParseError instead of a warning.
	strict bool
}

// readCSV reads a CSV export with a header row and calls row for every
// record with a lookup for its columns. A UTF-8 BOM is ignored.
func readCSV(data []byte, c *collector, opts csvOptions, row func(get func(col string) string)) error {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	reader := csv.NewReader(bytes.NewReader(data))
	reader.LazyQuotes = !opts.strict
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return &ParseError{Line: 1, Err: errors.New("empty file")}
		}
		return &ParseError{Line: 1, Err: fmt.Errorf("failed to read CSV header: %w", err)}
	}

	colIndex := make(map[string]int, len(header))
	for i, col := range header {
		colIndex[opts.key(strings.TrimSpace(col))] = i
	}
	if _, ok := colIndex[opts.required]; !ok {
		return &ParseError{Line: 1, Err: fmt.Errorf("%w: %s", errMissingColumn, opts.required)}
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			line := 0
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				line = perr.StartLine
			}
			if opts.strict {
				return &ParseError{Line: line, Err: err}
			}
			c.warn("row %d: failed to parse: %v", line, err)
			continue
		}
		line, _ := reader.FieldPos(0)
		if len(record) != len(header) {
			if opts.strict {
				return &ParseError{Line: line, Err: fmt.Errorf("expected %d columns, got %d", len(header), len(record))}
			}
			c.warn("row %d: column count mismatch (expected %d, got %d)", line, len(header), len(record))
			continue
		}

		row(func(col string) string {
			if idx, ok := colIndex[col]; ok && idx < len(record) {
				return record[idx]
			}
			return ""
		})
	}
}

// GetParser returns a parser for the given source.
func GetParser(source Source) (Parser, error) {
	switch source {
	case SourceNative:
		return &NativeParser{}, nil
	case Source1Password:
		return &OnePasswordParser{}, nil
	case SourceBitwarden:
		return &BitwardenParser{}, nil
	case SourceLastPass:
		return &LastPassParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported import source: %s", source)
	}
}

// ValidSources returns a list of valid source names.
func ValidSources() []string {
	return []string{
		string(SourceNative),
		string(Source1Password),
		string(SourceBitwarden),
		string(SourceLastPass),
	}
}
