// Package syncagent exchanges vault contents with a peer and folds the
// reconciled result back into an unlocked vault.
package syncagent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/secretkeep/secretkeep/pkg/secret"
	"github.com/secretkeep/secretkeep/pkg/vault"
)

// ErrNeedsNormalize is returned when the vault holds duplicate or untrimmed
// descriptions and Run was not asked to normalize them first.
var ErrNeedsNormalize = errors.New("syncagent: vault needs normalizing before sync")

// Agent exchanges a snapshot of all secrets, tombstones included, with a
// peer. It returns the reconciled list to fold into the vault, or an error
// when the exchange failed.
type Agent interface {
	Name() string
	Exchange(ctx context.Context, local []secret.Secret) ([]secret.Secret, error)
}

// Target is the vault side of a sync.
type Target interface {
	IsLocked() bool
	Secrets() *secret.Collection
	Normalize(ctx context.Context) (bool, error)
	ApplySync(ctx context.Context, incoming []secret.Secret) (int, error)
}

var _ Target = (*vault.Vault)(nil)

// Result describes a completed sync.
type Result struct {
	SessionID  string
	Agent      string
	Normalized bool
	Sent       int
	Applied    int
	Duration   time.Duration
}

// Options configure Run.
type Options struct {
	// Normalize repairs descriptions before the exchange instead of failing
	// with ErrNeedsNormalize.
	Normalize bool
	Logger    *zap.Logger
}

// Run syncs t with agent. The snapshot is taken before the exchange and the
// exchange runs without holding the vault, so a slow peer does not block
// other callers. A failed exchange leaves the vault untouched and is
// reported as secret.ErrSyncConflict.
func Run(ctx context.Context, t Target, agent Agent, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if t.IsLocked() {
		return nil, vault.ErrVaultLocked
	}

	res := &Result{SessionID: uuid.NewString(), Agent: agent.Name()}
	logger = logger.With(zap.String("session", res.SessionID), zap.String("agent", res.Agent))
	start := time.Now()

	if t.Secrets().NeedsNormalize() {
		if !opts.Normalize {
			return nil, ErrNeedsNormalize
		}
		changed, err := t.Normalize(ctx)
		if err != nil {
			return nil, fmt.Errorf("syncagent: normalize: %w", err)
		}
		res.Normalized = changed
	}

	local := t.Secrets().AllAndDeleted()
	res.Sent = len(local)
	logger.Debug("sync exchange started", zap.Int("sent", res.Sent))

	incoming, err := agent.Exchange(ctx, local)
	if err != nil {
		logger.Warn("sync exchange failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", secret.ErrSyncConflict, err)
	}
	if incoming == nil {
		return nil, secret.ErrSyncConflict
	}

	n, err := t.ApplySync(ctx, incoming)
	if err != nil {
		return nil, err
	}
	res.Applied = n
	res.Duration = time.Since(start)
	logger.Info("sync completed", zap.Int("applied", n), zap.Duration("took", res.Duration))
	return res, nil
}
