package secret

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrSyncConflict is returned by MergeSync when the sync source failed
	// or returned data that cannot be applied. The collection is unchanged.
	ErrSyncConflict = errors.New("secret: sync failed")

	// ErrOutOfRange is returned for a position outside the active collection.
	ErrOutOfRange = errors.New("secret: position out of range")

	// ErrNotFound is returned when no secret has the requested description.
	ErrNotFound = errors.New("secret: not found")
)

// Collection is the ordered set of active secrets together with the
// tombstones of deleted ones. Both lists are kept sorted by description at
// all times and never share a description. All methods are safe for
// concurrent use.
//
// Positions passed to and returned from methods index the active list.
type Collection struct {
	mu      sync.Mutex
	active  []Secret
	deleted []Secret

	query string
	view  []Secret
	gen   uint64 // bumped on every mutation; invalidates view
	vgen  uint64 // generation view was computed at
}

// NewCollection builds a collection from a combined list, splitting it by
// the Deleted flag.
func NewCollection(all []Secret) *Collection {
	c := &Collection{}
	c.Replace(all)
	return c
}

// Replace discards the current contents and loads all, splitting it into
// active and deleted by each secret's Deleted flag. Input order does not
// matter; equal descriptions keep their relative order.
func (c *Collection) Replace(all []Secret) {
	var active, deleted []Secret
	for _, s := range all {
		s = s.Clone()
		if s.Deleted {
			deleted = append(deleted, s)
		} else {
			active = append(active, s)
		}
	}
	sort.SliceStable(active, func(i, j int) bool { return Less(active[i], active[j]) })
	sort.SliceStable(deleted, func(i, j int) bool { return Less(deleted[i], deleted[j]) })

	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = active
	c.deleted = nil
	for _, d := range deleted {
		if c.indexOfActive(d.Description) >= 0 {
			continue
		}
		c.dropTombstone(d.Description)
		c.putTombstone(d)
	}
	c.touch()
}

// Insert adds s to the active list and returns its position. s lands after
// any secrets with an equal description. A tombstone with the same
// description is dropped, since the description is live again.
func (c *Collection) Insert(s Secret) int {
	s = s.Clone()
	s.Deleted = false

	c.mu.Lock()
	defer c.mu.Unlock()
	pos := c.insertActive(s)
	c.dropTombstone(s.Description)
	c.touch()
	return pos
}

// Remove permanently removes the secret at pos without leaving a tombstone.
func (c *Collection) Remove(pos int) (Secret, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pos < 0 || pos >= len(c.active) {
		return Secret{}, fmt.Errorf("%w: %d", ErrOutOfRange, pos)
	}
	s := c.active[pos]
	c.active = append(c.active[:pos], c.active[pos+1:]...)
	c.touch()
	return s, nil
}

// Delete soft-deletes the secret at pos: it moves to the deleted list,
// replacing any earlier tombstone with the same description.
func (c *Collection) Delete(pos int) (Secret, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pos < 0 || pos >= len(c.active) {
		return Secret{}, fmt.Errorf("%w: %d", ErrOutOfRange, pos)
	}
	s := c.active[pos]
	c.active = append(c.active[:pos], c.active[pos+1:]...)

	s.Deleted = true
	c.dropTombstone(s.Description)
	c.putTombstone(s)
	c.touch()
	return s.Clone(), nil
}

// Update applies fn to a copy of the secret at pos and stores the result.
// If the description changed, the secret is moved to keep the list
// ordered. Returns the secret's new position.
func (c *Collection) Update(pos int, fn func(s *Secret)) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pos < 0 || pos >= len(c.active) {
		return 0, fmt.Errorf("%w: %d", ErrOutOfRange, pos)
	}

	s := c.active[pos].Clone()
	fn(&s)
	s.Deleted = false

	if s.Description == c.active[pos].Description {
		c.active[pos] = s
		c.touch()
		return pos, nil
	}

	c.active = append(c.active[:pos], c.active[pos+1:]...)
	newPos := c.insertActive(s)
	c.dropTombstone(s.Description)
	c.touch()
	return newPos, nil
}

// MergeSync folds the result of a sync exchange into the collection.
// Each incoming secret replaces the active secret with the same
// description, or is inserted if none exists; incoming tombstones remove
// the matching active secret. A nil or malformed result is a failed sync:
// ErrSyncConflict is returned and nothing changes. On success all local
// tombstones are cleared, because the sync source has reconciled them.
func (c *Collection) MergeSync(incoming []Secret) (int, error) {
	if incoming == nil {
		return 0, ErrSyncConflict
	}
	for i, s := range incoming {
		if strings.TrimSpace(s.Description) == "" {
			return 0, fmt.Errorf("%w: incoming secret %d has no description", ErrSyncConflict, i)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := cloneAll(c.active)
	for _, in := range incoming {
		in = in.Clone()
		i := sort.Search(len(next), func(i int) bool { return next[i].Description >= in.Description })
		found := i < len(next) && next[i].Description == in.Description

		switch {
		case in.Deleted && found:
			next = append(next[:i], next[i+1:]...)
		case in.Deleted:
		case found:
			next[i] = in
		default:
			next = append(next, Secret{})
			copy(next[i+1:], next[i:])
			next[i] = in
		}
	}

	c.active = next
	c.deleted = nil
	c.touch()
	return len(incoming), nil
}

// AllAndDeleted returns a copy of the active and deleted secrets merged into
// a single ordered list. This is the snapshot handed to a sync source.
func (c *Collection) AllAndDeleted() []Secret {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Secret, 0, len(c.active)+len(c.deleted))
	i, j := 0, 0
	for i < len(c.active) && j < len(c.deleted) {
		if Less(c.deleted[j], c.active[i]) {
			out = append(out, c.deleted[j].Clone())
			j++
		} else {
			out = append(out, c.active[i].Clone())
			i++
		}
	}
	for ; i < len(c.active); i++ {
		out = append(out, c.active[i].Clone())
	}
	for ; j < len(c.deleted); j++ {
		out = append(out, c.deleted[j].Clone())
	}
	return out
}

// Active returns a copy of the active secrets in order.
func (c *Collection) Active() []Secret {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneAll(c.active)
}

// Deleted returns a copy of the tombstones in order.
func (c *Collection) Deleted() []Secret {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneAll(c.deleted)
}

// Len returns the number of active secrets.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// At returns a copy of the active secret at pos.
func (c *Collection) At(pos int) (Secret, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pos < 0 || pos >= len(c.active) {
		return Secret{}, fmt.Errorf("%w: %d", ErrOutOfRange, pos)
	}
	return c.active[pos].Clone(), nil
}

// Find returns the position of the first active secret with the given
// description.
func (c *Collection) Find(description string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexOfActive(description); i >= 0 {
		return i, nil
	}
	return -1, fmt.Errorf("%w: %q", ErrNotFound, description)
}

// Undelete moves the tombstone with the given description back into the
// active list and returns its position.
func (c *Collection) Undelete(description string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := sort.Search(len(c.deleted), func(i int) bool { return c.deleted[i].Description >= description })
	if i >= len(c.deleted) || c.deleted[i].Description != description {
		return -1, fmt.Errorf("%w: %q", ErrNotFound, description)
	}
	s := c.deleted[i]
	c.deleted = append(c.deleted[:i], c.deleted[i+1:]...)
	s.Deleted = false
	pos := c.insertActive(s)
	c.touch()
	return pos, nil
}

// Purge drops every tombstone and returns how many were removed.
func (c *Collection) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.deleted)
	c.deleted = nil
	c.touch()
	return n
}

// Clear empties the collection, tombstones included.
func (c *Collection) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = nil
	c.deleted = nil
	c.query = ""
	c.view = nil
	c.touch()
}

// Usernames returns the distinct non-empty usernames in use, sorted.
func (c *Collection) Usernames() []string {
	return c.distinct(func(s Secret) string { return s.Username })
}

// Emails returns the distinct non-empty email addresses in use, sorted.
func (c *Collection) Emails() []string {
	return c.distinct(func(s Secret) string { return s.Email })
}

func (c *Collection) distinct(field func(Secret) string) []string {
	c.mu.Lock()
	seen := make(map[string]struct{})
	for _, s := range c.active {
		if v := field(s); v != "" {
			seen[v] = struct{}{}
		}
	}
	c.mu.Unlock()

	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Filter applies query to a snapshot of the active list, stores the result
// as the current view, and returns it. Filtering runs without the lock held.
func (c *Collection) Filter(query string) []Secret {
	c.mu.Lock()
	snapshot := cloneAll(c.active)
	gen := c.gen
	c.mu.Unlock()

	view := Filter(snapshot, query)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.query = query
	if c.gen == gen {
		c.view = view
		c.vgen = gen
	}
	return view
}

// View returns the result of the last Filter call, recomputed if the
// collection changed since.
func (c *Collection) View() []Secret {
	c.mu.Lock()
	if c.vgen == c.gen && c.view != nil {
		view := cloneAll(c.view)
		c.mu.Unlock()
		return view
	}
	query := c.query
	c.mu.Unlock()
	return c.Filter(query)
}

// insertActive places s after every element not greater than it.
// Callers hold c.mu.
func (c *Collection) insertActive(s Secret) int {
	pos := sort.Search(len(c.active), func(i int) bool { return Less(s, c.active[i]) })
	c.active = append(c.active, Secret{})
	copy(c.active[pos+1:], c.active[pos:])
	c.active[pos] = s
	return pos
}

func (c *Collection) indexOfActive(description string) int {
	i := sort.Search(len(c.active), func(i int) bool { return c.active[i].Description >= description })
	if i < len(c.active) && c.active[i].Description == description {
		return i
	}
	return -1
}

func (c *Collection) putTombstone(s Secret) {
	pos := sort.Search(len(c.deleted), func(i int) bool { return Less(s, c.deleted[i]) })
	c.deleted = append(c.deleted, Secret{})
	copy(c.deleted[pos+1:], c.deleted[pos:])
	c.deleted[pos] = s
}

func (c *Collection) dropTombstone(description string) {
	i := sort.Search(len(c.deleted), func(i int) bool { return c.deleted[i].Description >= description })
	for i < len(c.deleted) && c.deleted[i].Description == description {
		c.deleted = append(c.deleted[:i], c.deleted[i+1:]...)
	}
}

func (c *Collection) touch() {
	c.gen++
}
