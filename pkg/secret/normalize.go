package secret

import (
	"sort"
	"strconv"
	"strings"
)

// DuplicateSuffix separates a description from its disambiguating number.
const DuplicateSuffix = " ##"

// Normalize makes active descriptions unique so that secrets can be synced
// by description. Descriptions are trimmed, and within each run of equal
// descriptions every secret after the first gets " ##n" appended, n
// counting from 1. A suffix already used by another secret is skipped.
// Tombstones whose description equals a newly assigned one are dropped.
//
// Returns whether anything changed. Normalize never fails, and a second
// call without intervening changes returns false.
func (c *Collection) Normalize() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.normalize(true)
}

// NeedsNormalize reports whether Normalize would change anything.
func (c *Collection) NeedsNormalize() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.normalize(false)
}

func (c *Collection) normalize(apply bool) bool {
	existing := make(map[string]bool, len(c.active))
	for _, s := range c.active {
		existing[s.Description] = true
	}
	// Final descriptions of the secrets handled so far.
	seen := make(map[string]bool, len(c.active))

	var renamed []string
	lastDescr, haveLast := "", false
	incr := 1

	for i := range c.active {
		raw := c.active[i].Description
		descr := strings.TrimSpace(raw)

		dup := haveLast && descr == lastDescr
		if !dup && seen[descr] {
			// Taken by an earlier, non-adjacent secret: start a run here.
			lastDescr, incr, dup = descr, 1, true
		}
		if dup {
			base := descr
			for {
				descr = strings.TrimSpace(base + DuplicateSuffix + strconv.Itoa(incr))
				incr++
				if !existing[descr] && !seen[descr] {
					break
				}
			}
		} else {
			lastDescr, haveLast = descr, true
			incr = 1
		}
		seen[descr] = true

		if descr != raw {
			if apply {
				c.active[i].Description = descr
			}
			renamed = append(renamed, descr)
		}
	}

	if len(renamed) == 0 || !apply {
		return len(renamed) > 0
	}

	sort.SliceStable(c.active, func(i, j int) bool { return Less(c.active[i], c.active[j]) })
	for _, d := range renamed {
		c.dropTombstone(d)
	}
	c.touch()
	return true
}
