package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/secretkeep/secretkeep/pkg/secret"
)

// NativeHeader is the column order of the native CSV format.
var NativeHeader = []string{"description", "username", "password", "email", "notes"}

// NativeParser parses the native CSV format written by WriteCSV. Unlike the
// other parsers it fails on the first malformed row with a *ParseError.
type NativeParser struct{}

// Source returns the source type for this parser.
func (p *NativeParser) Source() Source {
	return SourceNative
}

// Parse parses native CSV data. Column order is free; "note" is accepted
// for "notes".
func (p *NativeParser) Parse(data []byte, opts ParseOptions) (*ImportResult, error) {
	c := newCollector(opts)
	err := readCSV(data, c, csvOptions{
		required: "description",
		key: func(col string) string {
			col = strings.ToLower(col)
			if col == "note" {
				return "notes"
			}
			return col
		},
		strict: true,
	}, func(get func(string) string) {
		it := &item{
			name:     get("description"),
			username: get("username"),
			password: get("password"),
			email:    get("email"),
		}
		it.note.body = get("notes")
		c.add(it)
	})
	if err != nil {
		return nil, err
	}
	return c.done(), nil
}

// WriteCSV writes secrets in the native CSV format, header first.
func WriteCSV(w io.Writer, secrets []secret.Secret) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(NativeHeader); err != nil {
		return fmt.Errorf("importer: failed to write CSV header: %w", err)
	}
	for _, s := range secrets {
		if err := cw.Write([]string{s.Description, s.Username, s.Password, s.Email, s.Note}); err != nil {
			return fmt.Errorf("importer: failed to write %q: %w", s.Description, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
