// Package persist stores named byte blobs for the vault: the vault file
// itself, its restore points and small state records. Writes are atomic; a
// reader never observes a partially written blob.
package persist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by LoadRaw when no blob has the given name.
	ErrNotFound = errors.New("persist: not found")

	// ErrInvalidName is returned for names that could escape the store.
	ErrInvalidName = errors.New("persist: invalid name")

	// ErrInsufficientDisk is returned when a write would exhaust the disk.
	ErrInsufficientDisk = errors.New("persist: insufficient disk space")
)

// Entry describes a stored blob.
type Entry struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Store is a flat namespace of blobs.
type Store interface {
	// LoadRaw returns the blob called name, or ErrNotFound.
	LoadRaw(ctx context.Context, name string) ([]byte, error)
	// SaveRaw atomically replaces the blob called name.
	SaveRaw(ctx context.Context, name string, data []byte) error
	// Delete removes name. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the blobs whose name starts with prefix, sorted by name.
	List(ctx context.Context, prefix string) ([]Entry, error)
	// Close releases resources held by the store.
	Close() error
}

// ValidateName rejects names that are empty, hidden, or contain path
// separators.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`+"\x00"):
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case len(name) > 255:
		return fmt.Errorf("%w: too long", ErrInvalidName)
	}
	return nil
}
