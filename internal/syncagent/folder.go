package syncagent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/secretkeep/secretkeep/pkg/backup"
	"github.com/secretkeep/secretkeep/pkg/persist"
	"github.com/secretkeep/secretkeep/pkg/secret"
)

// ExchangeBlob is the name of the shared state in the exchange store.
const ExchangeBlob = "secretkeep-sync"

// FolderAgent syncs through a directory shared with the peers, for
// example one kept in step by a file sync service. The shared state is a
// backup container sealed with a key file every peer holds.
type FolderAgent struct {
	store   persist.Store
	keyFile string
	logger  *zap.Logger
}

// FolderOption configures a FolderAgent.
type FolderOption func(*FolderAgent)

// WithFolderLogger sets the logger.
func WithFolderLogger(l *zap.Logger) FolderOption {
	return func(a *FolderAgent) { a.logger = l }
}

// NewFolderAgent returns an agent exchanging through dir.
func NewFolderAgent(dir, keyFile string, opts ...FolderOption) (*FolderAgent, error) {
	a := &FolderAgent{keyFile: keyFile, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	store, err := persist.NewFileStore(dir, persist.WithLogger(a.logger))
	if err != nil {
		return nil, fmt.Errorf("syncagent: %w", err)
	}
	a.store = store
	return a, nil
}

// NewStoreAgent returns an agent exchanging through any store.
func NewStoreAgent(store persist.Store, keyFile string, opts ...FolderOption) *FolderAgent {
	a := &FolderAgent{store: store, keyFile: keyFile, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *FolderAgent) Name() string { return "folder" }

// Exchange reconciles local with the shared state, writes the result back
// for the peers and returns it.
func (a *FolderAgent) Exchange(ctx context.Context, local []secret.Secret) ([]secret.Secret, error) {
	keys, err := backup.KeysFromKeyFile(a.keyFile)
	if err != nil {
		return nil, err
	}
	defer keys.Wipe()

	remote, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	merged := Reconcile(local, remote)
	if err := a.save(ctx, merged, keys); err != nil {
		return nil, err
	}
	a.logger.Debug("folder exchange", zap.Int("local", len(local)), zap.Int("remote", len(remote)), zap.Int("merged", len(merged)))
	return merged, nil
}

func (a *FolderAgent) load(ctx context.Context) ([]secret.Secret, error) {
	data, err := a.store.LoadRaw(ctx, ExchangeBlob)
	if errors.Is(err, persist.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("syncagent: failed to read shared state: %w", err)
	}

	_, payload, err := backup.Open(data, backup.Credentials{KeyFile: a.keyFile})
	if err != nil {
		return nil, fmt.Errorf("syncagent: failed to open shared state: %w", err)
	}
	var remote []secret.Secret
	if err := json.Unmarshal(payload.Vault, &remote); err != nil {
		return nil, fmt.Errorf("syncagent: failed to decode shared state: %w", err)
	}
	return remote, nil
}

func (a *FolderAgent) save(ctx context.Context, merged []secret.Secret, keys backup.Keys) error {
	data, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("syncagent: failed to encode shared state: %w", err)
	}
	var buf bytes.Buffer
	if err := backup.Seal(&buf, backup.Snapshot{Vault: data, SecretCount: len(merged)}, keys, backup.EncryptionModeKey); err != nil {
		return err
	}
	if err := a.store.SaveRaw(ctx, ExchangeBlob, buf.Bytes()); err != nil {
		return fmt.Errorf("syncagent: failed to write shared state: %w", err)
	}
	return nil
}

// Close releases the exchange store.
func (a *FolderAgent) Close() error {
	return a.store.Close()
}
