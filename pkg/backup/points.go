package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/secretkeep/secretkeep/pkg/persist"
)

// PointPrefix names restore point blobs in the store.
const PointPrefix = "restore-"

const pointTimeLayout = "20060102T150405.000000000Z"

// Point describes a stored restore point.
type Point struct {
	Name      string
	CreatedAt time.Time
	Size      int64
}

// Manager keeps restore points in a persist.Store.
type Manager struct {
	store  persist.Store
	logger *zap.Logger
	now    func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger.
func WithManagerLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithManagerClock overrides time.Now.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager returns a Manager over store.
func NewManager(store persist.Store, opts ...ManagerOption) *Manager {
	m := &Manager{store: store, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// PointName returns the blob name of a restore point created at t.
func PointName(t time.Time) string {
	return PointPrefix + t.UTC().Format(pointTimeLayout)
}

func parsePointName(name string) (time.Time, bool) {
	ts, ok := strings.CutPrefix(name, PointPrefix)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(pointTimeLayout, ts)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Save seals snap with keys and stores it as a new restore point.
func (m *Manager) Save(ctx context.Context, snap Snapshot, keys Keys) (Point, error) {
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = m.now()
	}
	var buf bytes.Buffer
	if err := Seal(&buf, snap, keys, EncryptionModeMaster); err != nil {
		return Point{}, err
	}
	name := PointName(snap.CreatedAt)
	if err := m.store.SaveRaw(ctx, name, buf.Bytes()); err != nil {
		return Point{}, fmt.Errorf("backup: failed to store restore point: %w", err)
	}
	m.logger.Debug("restore point saved", zap.String("name", name), zap.Int("size", buf.Len()))
	return Point{Name: name, CreatedAt: snap.CreatedAt.UTC(), Size: int64(buf.Len())}, nil
}

// List returns the restore points, newest first.
func (m *Manager) List(ctx context.Context) ([]Point, error) {
	entries, err := m.store.List(ctx, PointPrefix)
	if err != nil {
		return nil, err
	}
	points := make([]Point, 0, len(entries))
	for _, e := range entries {
		t, ok := parsePointName(e.Name)
		if !ok {
			m.logger.Warn("ignoring unrecognized restore point", zap.String("name", e.Name))
			continue
		}
		points = append(points, Point{Name: e.Name, CreatedAt: t, Size: e.Size})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].CreatedAt.After(points[j].CreatedAt) })
	return points, nil
}

// Load returns the raw container of the named restore point.
func (m *Manager) Load(ctx context.Context, name string) ([]byte, error) {
	if _, ok := parsePointName(name); !ok {
		return nil, fmt.Errorf("%w: %q", ErrPointNotFound, name)
	}
	data, err := m.store.LoadRaw(ctx, name)
	if errors.Is(err, persist.ErrNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrPointNotFound, name)
	}
	return data, err
}

// Open loads and decrypts the named restore point.
func (m *Manager) Open(ctx context.Context, name string, creds Credentials) (*Header, *Payload, error) {
	data, err := m.Load(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	return Open(data, creds)
}

// NewestAge reports how long ago the newest restore point was made. ok is
// false when there are none.
func (m *Manager) NewestAge(ctx context.Context) (age time.Duration, ok bool, err error) {
	points, err := m.List(ctx)
	if err != nil || len(points) == 0 {
		return 0, false, err
	}
	return m.now().Sub(points[0].CreatedAt), true, nil
}

// Prune keeps the newest keep points and deletes the rest. With maxAge
// greater than zero, points older than maxAge are deleted too, except the
// newest one. It returns the number of points deleted.
func (m *Manager) Prune(ctx context.Context, keep int, maxAge time.Duration) (int, error) {
	points, err := m.List(ctx)
	if err != nil {
		return 0, err
	}
	now := m.now()
	removed := 0
	for i, p := range points {
		expired := maxAge > 0 && i > 0 && now.Sub(p.CreatedAt) > maxAge
		if i < keep && !expired {
			continue
		}
		if err := m.store.Delete(ctx, p.Name); err != nil {
			return removed, fmt.Errorf("backup: failed to delete %s: %w", p.Name, err)
		}
		removed++
	}
	if removed > 0 {
		m.logger.Debug("restore points pruned", zap.Int("removed", removed))
	}
	return removed, nil
}
