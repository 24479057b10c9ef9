package importer

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BitwardenParser parses Bitwarden JSON export files with item types 1-4.
type BitwardenParser struct{}

// Bitwarden item types.
const (
	bitwardenTypeLogin      = 1
	bitwardenTypeSecureNote = 2
	bitwardenTypeCard       = 3
	bitwardenTypeIdentity   = 4
)

// Bitwarden custom field types.
const (
	bitwardenFieldBoolean = 2
)

// bitwardenExport represents the top-level Bitwarden export structure.
type bitwardenExport struct {
	Encrypted bool              `json:"encrypted"`
	Items     []bitwardenItem   `json:"items"`
	Folders   []bitwardenFolder `json:"folders"`
}

type bitwardenFolder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type bitwardenItem struct {
	Type          int                    `json:"type"`
	Name          string                 `json:"name"`
	Notes         string                 `json:"notes"`
	FolderID      *string                `json:"folderId"`
	CollectionIDs []string               `json:"collectionIds"`
	Login         *bitwardenLogin        `json:"login"`
	Card          *bitwardenCard         `json:"card"`
	Identity      *bitwardenIdentity     `json:"identity"`
	Fields        []bitwardenCustomField `json:"fields"`
}

type bitwardenLogin struct {
	URIs     []bitwardenURI `json:"uris"`
	Username string         `json:"username"`
	Password string         `json:"password"`
	TOTP     string         `json:"totp"`
}

type bitwardenURI struct {
	URI string `json:"uri"`
}

type bitwardenCard struct {
	CardholderName string `json:"cardholderName"`
	Number         string `json:"number"`
	ExpMonth       string `json:"expMonth"`
	ExpYear        string `json:"expYear"`
	Code           string `json:"code"`
	Brand          string `json:"brand"`
}

type bitwardenIdentity struct {
	Title          string `json:"title"`
	FirstName      string `json:"firstName"`
	MiddleName     string `json:"middleName"`
	LastName       string `json:"lastName"`
	Username       string `json:"username"`
	Company        string `json:"company"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Address1       string `json:"address1"`
	Address2       string `json:"address2"`
	Address3       string `json:"address3"`
	City           string `json:"city"`
	State          string `json:"state"`
	PostalCode     string `json:"postalCode"`
	Country        string `json:"country"`
	SSN            string `json:"ssn"`
	PassportNumber string `json:"passportNumber"`
	LicenseNumber  string `json:"licenseNumber"`
}

type bitwardenCustomField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Type  int    `json:"type"`
}

// Source returns the source type for this parser.
func (p *BitwardenParser) Source() Source {
	return SourceBitwarden
}

// Parse parses Bitwarden JSON data. Encrypted exports are rejected.
func (p *BitwardenParser) Parse(data []byte, opts ParseOptions) (*ImportResult, error) {
	var export bitwardenExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("failed to parse Bitwarden JSON: %w", err)
	}
	if export.Encrypted {
		return nil, fmt.Errorf("encrypted Bitwarden exports are not supported; export as unencrypted JSON")
	}

	folders := make(map[string]string, len(export.Folders))
	for _, f := range export.Folders {
		folders[f.ID] = f.Name
	}

	c := newCollector(opts)
	for i := range export.Items {
		bw := &export.Items[i]
		it, ok := p.parseItem(bw, folders)
		if !ok {
			c.warn("item %d (%s): unsupported item type: %d", i+1, bw.Name, bw.Type)
			continue
		}
		c.add(it)
	}
	return c.done(), nil
}

// parseItem maps a Bitwarden item to an item. It reports false for unknown
// item types.
func (p *BitwardenParser) parseItem(bw *bitwardenItem, folders map[string]string) (*item, bool) {
	it := &item{name: bw.Name}
	it.note.body = bw.Notes

	switch bw.Type {
	case bitwardenTypeLogin:
		p.parseLogin(bw, it)
	case bitwardenTypeSecureNote:
	case bitwardenTypeCard:
		p.parseCard(bw, it)
	case bitwardenTypeIdentity:
		p.parseIdentity(bw, it)
	default:
		return nil, false
	}

	for _, cf := range bw.Fields {
		label := strings.TrimSpace(cf.Name)
		if label == "" {
			label = "Custom field"
		}
		value := cf.Value
		if cf.Type == bitwardenFieldBoolean && value == "" {
			value = "false"
		}
		it.note.add(label, value)
	}

	if bw.FolderID != nil {
		it.folder = folders[*bw.FolderID]
	}
	it.note.addContext("Folder", it.folder)
	for _, id := range bw.CollectionIDs {
		it.note.addContext("Collection", folders[id])
	}
	return it, true
}

func (p *BitwardenParser) parseLogin(bw *bitwardenItem, it *item) {
	login := bw.Login
	if login == nil {
		return
	}
	it.username = login.Username
	it.password = login.Password

	for i, u := range login.URIs {
		if u.URI == "" {
			continue
		}
		if it.url == "" {
			it.url = u.URI
			it.note.addContext("URL", u.URI)
			continue
		}
		it.note.addContext(fmt.Sprintf("URL %d", i+1), u.URI)
	}
	it.note.add("TOTP", login.TOTP)
}

func (p *BitwardenParser) parseCard(bw *bitwardenItem, it *item) {
	card := bw.Card
	if card == nil {
		return
	}
	it.username = card.CardholderName
	it.password = card.Number
	it.note.add("Brand", card.Brand)
	if card.ExpMonth != "" || card.ExpYear != "" {
		it.note.add("Expires", strings.Trim(card.ExpMonth+"/"+card.ExpYear, "/"))
	}
	it.note.add("Security code", card.Code)
}

func (p *BitwardenParser) parseIdentity(bw *bitwardenItem, it *item) {
	id := bw.Identity
	if id == nil {
		return
	}
	it.username = id.Username
	it.email = id.Email

	name := strings.Join(strings.Fields(strings.Join([]string{id.Title, id.FirstName, id.MiddleName, id.LastName}, " ")), " ")
	it.note.add("Name", name)
	it.note.add("Company", id.Company)
	it.note.add("Phone", id.Phone)
	for _, line := range []string{id.Address1, id.Address2, id.Address3} {
		it.note.add("Address", line)
	}
	it.note.add("City", id.City)
	it.note.add("State", id.State)
	it.note.add("Postal code", id.PostalCode)
	it.note.add("Country", id.Country)
	it.note.add("SSN", id.SSN)
	it.note.add("Passport", id.PassportNumber)
	it.note.add("License", id.LicenseNumber)
}
