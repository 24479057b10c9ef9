package importer

import "strings"

// LastPassParser parses LastPass CSV export files:
// url,username,password,totp,extra,name,grouping,fav
type LastPassParser struct{}

// LastPass CSV column names (header-based parsing).
const (
	lpColURL      = "url"
	lpColUsername = "username"
	lpColPassword = "password"
	lpColTOTP     = "totp"
	lpColExtra    = "extra"
	lpColName     = "name"
	lpColGrouping = "grouping"
)

// lpSecureNoteURL marks secure notes in LastPass exports.
const lpSecureNoteURL = "http://sn"

// Source returns the source type for this parser.
func (p *LastPassParser) Source() Source {
	return SourceLastPass
}

// Parse parses LastPass CSV data.
func (p *LastPassParser) Parse(data []byte, opts ParseOptions) (*ImportResult, error) {
	c := newCollector(opts)
	err := readCSV(data, c, csvOptions{
		required: lpColName,
		key:      strings.ToLower,
	}, func(get func(string) string) {
		c.add(p.parseRow(func(col string) string {
			return DecodeHTMLEntities(strings.TrimSpace(get(col)))
		}))
	})
	if err != nil {
		return nil, err
	}
	return c.done(), nil
}

// parseRow maps a single CSV row to an item.
func (p *LastPassParser) parseRow(get func(string) string) *item {
	it := &item{
		name:     get(lpColName),
		folder:   get(lpColGrouping),
		username: get(lpColUsername),
		password: get(lpColPassword),
	}
	if url := get(lpColURL); url != lpSecureNoteURL {
		it.url = url
	}

	it.note.body = get(lpColExtra)
	it.note.addContext("URL", it.url)
	it.note.add("TOTP", get(lpColTOTP))
	it.note.addContext("Folder", it.folder)
	return it
}
