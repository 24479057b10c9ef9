package importer

import (
	"strings"
)

// OnePasswordParser parses 1Password CSV export files:
// Title,Website,Username,Password,OTPAuth,Favorite,Archived,Tags,Notes
type OnePasswordParser struct{}

// 1Password CSV column names (header-based parsing).
const (
	op1ColTitle    = "Title"
	op1ColWebsite  = "Website"
	op1ColUsername = "Username"
	op1ColPassword = "Password"
	op1ColOTPAuth  = "OTPAuth"
	op1ColArchived = "Archived"
	op1ColTags     = "Tags"
	op1ColNotes    = "Notes"
)

// Source returns the source type for this parser.
func (p *OnePasswordParser) Source() Source {
	return Source1Password
}

// Parse parses 1Password CSV data.
func (p *OnePasswordParser) Parse(data []byte, opts ParseOptions) (*ImportResult, error) {
	c := newCollector(opts)
	err := readCSV(data, c, csvOptions{
		required: op1ColTitle,
		key:      func(col string) string { return col },
	}, func(get func(string) string) {
		it := p.parseRow(func(col string) string { return strings.TrimSpace(get(col)) })
		if strings.EqualFold(get(op1ColArchived), "true") {
			c.warn("%q: archived item imported as active", it.name)
		}
		c.add(it)
	})
	if err != nil {
		return nil, err
	}
	return c.done(), nil
}

// parseRow maps a single CSV row to an item. The first tag is used as the
// folder.
func (p *OnePasswordParser) parseRow(get func(string) string) *item {
	it := &item{
		name:     get(op1ColTitle),
		url:      get(op1ColWebsite),
		username: get(op1ColUsername),
		password: get(op1ColPassword),
	}

	var tags []string
	for _, t := range strings.Split(get(op1ColTags), ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	if len(tags) > 0 {
		it.folder = tags[0]
	}

	it.note.body = get(op1ColNotes)
	it.note.addContext("URL", it.url)
	it.note.add("TOTP", get(op1ColOTPAuth))
	it.note.addContext("Tags", strings.Join(tags, ", "))
	return it
}
