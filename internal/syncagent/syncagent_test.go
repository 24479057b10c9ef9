package syncagent

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secretkeep/secretkeep/pkg/backup"
	"github.com/secretkeep/secretkeep/pkg/cipher"
	"github.com/secretkeep/secretkeep/pkg/persist"
	"github.com/secretkeep/secretkeep/pkg/secret"
	"github.com/secretkeep/secretkeep/pkg/vault"
)

const testPassword = "correct-horse-9"

func at(ms int64, t secret.LogType) []secret.LogEntry {
	return []secret.LogEntry{{Type: t, Time: ms}}
}

func descriptions(list []secret.Secret) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.Description
	}
	return out
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name       string
		local      []secret.Secret
		remote     []secret.Secret
		wantPass   map[string]string
		wantActive []string
		wantGone   []string
	}{
		{
			name:     "disjoint sets are unioned",
			local:    []secret.Secret{{Description: "A", Password: "a"}},
			remote:   []secret.Secret{{Description: "B", Password: "b"}},
			wantPass: map[string]string{"A": "a", "B": "b"},
		},
		{
			name:     "newer change wins",
			local:    []secret.Secret{{Description: "A", Password: "old", AccessLog: at(100, secret.Created)}},
			remote:   []secret.Secret{{Description: "A", Password: "new", AccessLog: at(200, secret.Changed)}},
			wantPass: map[string]string{"A": "new"},
		},
		{
			name:     "local wins ties",
			local:    []secret.Secret{{Description: "A", Password: "mine", AccessLog: at(100, secret.Created)}},
			remote:   []secret.Secret{{Description: "A", Password: "theirs", AccessLog: at(100, secret.Created)}},
			wantPass: map[string]string{"A": "mine"},
		},
		{
			name:     "views do not count as changes",
			local:    []secret.Secret{{Description: "A", Password: "old", AccessLog: append(at(100, secret.Created), secret.LogEntry{Type: secret.Viewed, Time: 900})}},
			remote:   []secret.Secret{{Description: "A", Password: "new", AccessLog: at(200, secret.Changed)}},
			wantPass: map[string]string{"A": "new"},
		},
		{
			name:     "remote tombstone deletes",
			local:    []secret.Secret{{Description: "A", AccessLog: at(100, secret.Created)}},
			remote:   []secret.Secret{{Description: "A", Deleted: true, AccessLog: at(100, secret.Created)}},
			wantGone: []string{"A"},
		},
		{
			name:     "change after delete resurrects",
			local:    []secret.Secret{{Description: "A", Password: "edited", AccessLog: at(300, secret.Changed)}},
			remote:   []secret.Secret{{Description: "A", Deleted: true, AccessLog: at(100, secret.Created)}},
			wantPass: map[string]string{"A": "edited"},
		},
		{
			name:     "local tombstone kept for peers",
			local:    []secret.Secret{{Description: "A", Deleted: true}},
			wantGone: []string{"A"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconcile(tt.local, tt.remote)
			byDesc := make(map[string]secret.Secret)
			for i, s := range got {
				byDesc[s.Description] = s
				if i > 0 {
					assert.True(t, secret.Less(got[i-1], s), "result must be sorted")
				}
			}
			for d, pw := range tt.wantPass {
				s, ok := byDesc[d]
				require.True(t, ok, "missing %s", d)
				assert.False(t, s.Deleted)
				assert.Equal(t, pw, s.Password)
			}
			for _, d := range tt.wantGone {
				assert.True(t, byDesc[d].Deleted, "%s should be a tombstone", d)
			}
		})
	}
}

func newVault(t *testing.T, now time.Time) *vault.Vault {
	t.Helper()
	store, err := persist.NewFileStore(t.TempDir())
	require.NoError(t, err)
	v := vault.New(store, vault.WithRounds(cipher.MinRounds), vault.WithClock(func() time.Time { return now }))
	require.NoError(t, v.Create(context.Background(), []byte(testPassword)))
	return v
}

func newAgent(t *testing.T, shared, keyFile string) *FolderAgent {
	t.Helper()
	a, err := NewFolderAgent(shared, keyFile)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestFolderAgentTwoPeers(t *testing.T) {
	ctx := context.Background()
	shared := t.TempDir()
	keyFile := filepath.Join(t.TempDir(), "sync.key")
	require.NoError(t, backup.GenerateKeyFile(keyFile))

	a := newVault(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	b := newVault(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	agentA := newAgent(t, shared, keyFile)
	agentB := newAgent(t, shared, keyFile)

	_, err := a.Add(ctx, secret.Secret{Description: "Bank", Password: "a1"})
	require.NoError(t, err)
	_, err = a.Add(ctx, secret.Secret{Description: "Email", Password: "a2"})
	require.NoError(t, err)
	_, err = b.Add(ctx, secret.Secret{Description: "Wifi", Password: "b1"})
	require.NoError(t, err)

	res, err := Run(ctx, a, agentA, Options{})
	require.NoError(t, err)
	assert.Equal(t, "folder", res.Agent)
	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, 2, res.Sent)

	_, err = Run(ctx, b, agentB, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bank", "Email", "Wifi"}, descriptions(b.Secrets().Active()))

	pos, err := a.Secrets().Find("Email")
	require.NoError(t, err)
	_, err = a.Delete(ctx, pos)
	require.NoError(t, err)

	_, err = Run(ctx, a, agentA, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bank", "Wifi"}, descriptions(a.Secrets().Active()))
	assert.Empty(t, a.Secrets().Deleted(), "a successful sync clears tombstones")

	_, err = Run(ctx, b, agentB, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bank", "Wifi"}, descriptions(b.Secrets().Active()))

	s, err := b.Secrets().At(0)
	require.NoError(t, err)
	last, ok := s.LastAccessed()
	require.True(t, ok)
	assert.Equal(t, secret.Synced, last.Type)
}

func TestFolderAgentWrongKey(t *testing.T) {
	ctx := context.Background()
	shared := t.TempDir()
	dir := t.TempDir()
	key1, key2 := filepath.Join(dir, "one.key"), filepath.Join(dir, "two.key")
	require.NoError(t, backup.GenerateKeyFile(key1))
	require.NoError(t, backup.GenerateKeyFile(key2))

	_, err := newAgent(t, shared, key1).Exchange(ctx, []secret.Secret{{Description: "A"}})
	require.NoError(t, err)

	_, err = newAgent(t, shared, key2).Exchange(ctx, nil)
	assert.ErrorIs(t, err, backup.ErrIntegrityFailed)
}

type failingAgent struct{}

func (failingAgent) Name() string { return "failing" }

func (failingAgent) Exchange(context.Context, []secret.Secret) ([]secret.Secret, error) {
	return nil, errors.New("peer unreachable")
}

type nilAgent struct{}

func (nilAgent) Name() string { return "nil" }

func (nilAgent) Exchange(context.Context, []secret.Secret) ([]secret.Secret, error) {
	return nil, nil
}

func TestRunFailureLeavesVaultUntouched(t *testing.T) {
	ctx := context.Background()
	v := newVault(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	_, err := v.Add(ctx, secret.Secret{Description: "Bank", Password: "x"})
	require.NoError(t, err)
	pos, err := v.Secrets().Find("Bank")
	require.NoError(t, err)
	_, err = v.Delete(ctx, pos)
	require.NoError(t, err)

	for _, agent := range []Agent{failingAgent{}, nilAgent{}} {
		_, err = Run(ctx, v, agent, Options{})
		assert.ErrorIs(t, err, secret.ErrSyncConflict, agent.Name())
		assert.Len(t, v.Secrets().Deleted(), 1, "tombstones survive a failed sync")
	}
}

func TestRunNeedsNormalize(t *testing.T) {
	ctx := context.Background()
	v := newVault(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	for i := 0; i < 2; i++ {
		_, err := v.Add(ctx, secret.Secret{Description: "Bank", Password: "x"})
		require.NoError(t, err)
	}

	shared := t.TempDir()
	keyFile := filepath.Join(t.TempDir(), "sync.key")
	require.NoError(t, backup.GenerateKeyFile(keyFile))
	agent := newAgent(t, shared, keyFile)

	_, err := Run(ctx, v, agent, Options{})
	assert.ErrorIs(t, err, ErrNeedsNormalize)

	res, err := Run(ctx, v, agent, Options{Normalize: true})
	require.NoError(t, err)
	assert.True(t, res.Normalized)
	assert.Equal(t, []string{"Bank", "Bank ##1"}, descriptions(v.Secrets().Active()))
}

func TestRunLockedVault(t *testing.T) {
	v := newVault(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	v.Lock()
	_, err := Run(context.Background(), v, failingAgent{}, Options{})
	assert.ErrorIs(t, err, vault.ErrVaultLocked)
}
