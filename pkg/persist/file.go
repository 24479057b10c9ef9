package persist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

const (
	// FileMode is the permission of every blob file.
	FileMode = 0600
	// DirMode is the permission of the store directory.
	DirMode = 0700

	lockFileName = ".lock"
	tempPrefix   = ".tmp-"

	// MinFreeSpace is kept free on the disk after every write.
	MinFreeSpace = 10 * 1024 * 1024
)

// FileStore keeps each blob in its own file inside a directory.
type FileStore struct {
	dir    string
	logger *zap.Logger
}

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithLogger sets the logger used for non-fatal warnings.
func WithLogger(l *zap.Logger) FileOption {
	return func(s *FileStore) { s.logger = l }
}

// NewFileStore returns a store rooted at dir, creating it with DirMode if
// needed.
func NewFileStore(dir string, opts ...FileOption) (*FileStore, error) {
	s := &FileStore{dir: dir, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(dir, DirMode); err != nil {
		return nil, fmt.Errorf("persist: failed to create directory: %w", err)
	}
	s.warnInsecure()
	return s, nil
}

// Dir returns the store directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name), nil
}

func (s *FileStore) LoadRaw(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("persist: failed to read %s: %w", name, err)
	}
	return data, nil
}

// SaveRaw writes data to a temp file, syncs it, and renames it over the
// target while holding an advisory lock on the directory.
func (s *FileStore) SaveRaw(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := s.checkDiskSpace(len(data)); err != nil {
		return err
	}

	unlock, err := lockDir(filepath.Join(s.dir, lockFileName))
	if err != nil {
		return fmt.Errorf("persist: failed to lock store: %w", err)
	}
	defer unlock()

	tmp, err := os.CreateTemp(s.dir, tempPrefix+name+"-*")
	if err != nil {
		return fmt.Errorf("persist: failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if err := tmp.Chmod(FileMode); err != nil {
		cleanup()
		return fmt.Errorf("persist: failed to set permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("persist: failed to write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("persist: failed to sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("persist: failed to close %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, p); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("persist: failed to replace %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("persist: failed to delete %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("persist: failed to list store: %w", err)
	}

	var entries []Entry
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || strings.HasPrefix(name, ".") || !strings.HasPrefix(name, prefix) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Name: name, Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) checkDiskSpace(size int) error {
	available, err := availableBytes(s.dir)
	if err != nil {
		s.logger.Warn("failed to check disk space", zap.String("dir", s.dir), zap.Error(err))
		return nil
	}
	if available < uint64(size)+MinFreeSpace {
		return fmt.Errorf("%w: %d bytes available", ErrInsufficientDisk, available)
	}
	return nil
}

// warnInsecure logs when the directory is readable by group or others.
func (s *FileStore) warnInsecure() {
	info, err := os.Stat(s.dir)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		s.logger.Warn("store directory has insecure permissions",
			zap.String("dir", s.dir), zap.String("mode", fmt.Sprintf("%04o", perm)))
	}
}
