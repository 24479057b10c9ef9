package security

import (
	"encoding/hex"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/secretkeep/secretkeep/pkg/crypto"
	"github.com/secretkeep/secretkeep/pkg/secret"
)

// DuplicateGroup represents a group of secrets sharing the same password.
type DuplicateGroup struct {
	// Descriptions lists the affected secrets; empty unless requested.
	Descriptions []string `json:"descriptions,omitempty"`
	Count        int      `json:"count"`
}

// FindDuplicates groups secrets whose passwords are equal after trimming
// and NFC normalization. Passwords are compared through HMAC-SHA256 under
// a calculator-local random key, so no plaintext ends up in the grouping
// map. Groups are sorted by size, largest first.
func (c *Calculator) FindDuplicates(secrets []secret.Secret, includeDescriptions bool, limit int) ([]DuplicateGroup, error) {
	if err := c.ensureKey(); err != nil {
		return nil, err
	}

	byHash := make(map[string][]string)
	var order []string
	for _, s := range secrets {
		value := normalizeValue(s.Password)
		if value == "" {
			continue
		}
		h := computeValueHash(value, c.hmacKey)
		if _, ok := byHash[h]; !ok {
			order = append(order, h)
		}
		byHash[h] = append(byHash[h], s.Description)
	}

	var groups []DuplicateGroup
	for _, h := range order {
		descs := byHash[h]
		if len(descs) <= 1 {
			continue
		}
		g := DuplicateGroup{Count: len(descs)}
		if includeDescriptions {
			g.Descriptions = descs
		}
		groups = append(groups, g)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Count > groups[j].Count
	})
	if limit > 0 && len(groups) > limit {
		groups = groups[:limit]
	}
	return groups, nil
}

func (c *Calculator) ensureKey() error {
	if c.hmacKey != nil {
		return nil
	}
	key, err := crypto.RandomBytes(crypto.KeyLength)
	if err != nil {
		return err
	}
	c.hmacKey = key
	return nil
}

func computeValueHash(value string, key []byte) string {
	return hex.EncodeToString(crypto.ComputeHMAC(key, []byte(value)))
}

func normalizeValue(value string) string {
	return norm.NFC.String(strings.TrimSpace(value))
}
