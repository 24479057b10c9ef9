package vault

import (
	"context"
	"fmt"

	"github.com/secretkeep/secretkeep/pkg/audit"
	"github.com/secretkeep/secretkeep/pkg/secret"
)

// ConflictMode specifies how Import handles descriptions that already exist.
type ConflictMode int

const (
	// ConflictSkip keeps the existing secret.
	ConflictSkip ConflictMode = iota
	// ConflictOverwrite replaces the existing secret.
	ConflictOverwrite
	// ConflictError aborts the import before anything changes.
	ConflictError
)

// ParseConflictMode maps a CLI flag value to a ConflictMode.
func ParseConflictMode(s string) (ConflictMode, error) {
	switch s {
	case "", "skip":
		return ConflictSkip, nil
	case "overwrite":
		return ConflictOverwrite, nil
	case "error":
		return ConflictError, nil
	}
	return 0, fmt.Errorf("vault: unknown conflict mode %q (use skip, overwrite or error)", s)
}

// ImportResult counts what Import did.
type ImportResult struct {
	Added       int
	Overwritten int
	Skipped     int
}

// Add validates s, stamps it Created and stores it. It returns the
// secret's position in the active list.
func (v *Vault) Add(ctx context.Context, s secret.Secret) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireUnlocked(); err != nil {
		return -1, err
	}
	if err := ValidateSecret(s); err != nil {
		return -1, err
	}

	s.AccessLog = nil
	s.Deleted = false
	s.Touch(secret.Created, v.now())
	pos := v.secrets.Insert(s)

	if err := v.saveLocked(ctx); err != nil {
		return pos, err
	}
	v.record(audit.OpSecretAdd, s.Description, nil)
	return pos, nil
}

// Update applies fn to the secret at pos. A change to any field appends a
// Changed entry; an update that changes nothing is not saved. It returns
// the secret's new position.
func (v *Vault) Update(ctx context.Context, pos int, fn func(s *secret.Secret)) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireUnlocked(); err != nil {
		return -1, err
	}
	old, err := v.secrets.At(pos)
	if err != nil {
		return -1, err
	}
	edited := old.Clone()
	fn(&edited)
	if edited.Same(old) {
		return pos, nil
	}
	if err := ValidateSecret(edited); err != nil {
		return -1, err
	}

	now := v.now()
	newPos, err := v.secrets.Update(pos, func(s *secret.Secret) {
		*s = edited
		s.Touch(secret.Changed, now)
	})
	if err != nil {
		return -1, err
	}
	if err := v.saveLocked(ctx); err != nil {
		return newPos, err
	}
	v.record(audit.OpSecretUpdate, edited.Description, nil)
	return newPos, nil
}

// Reveal returns the secret at pos and records a Viewed entry.
func (v *Vault) Reveal(ctx context.Context, pos int) (secret.Secret, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireUnlocked(); err != nil {
		return secret.Secret{}, err
	}
	now := v.now()
	pos, err := v.secrets.Update(pos, func(s *secret.Secret) { s.Touch(secret.Viewed, now) })
	if err != nil {
		return secret.Secret{}, err
	}
	s, err := v.secrets.At(pos)
	if err != nil {
		return secret.Secret{}, err
	}
	if err := v.saveLocked(ctx); err != nil {
		return s, err
	}
	v.record(audit.OpSecretReveal, s.Description, nil)
	return s, nil
}

// Delete moves the secret at pos to the deleted list.
func (v *Vault) Delete(ctx context.Context, pos int) (secret.Secret, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireUnlocked(); err != nil {
		return secret.Secret{}, err
	}
	s, err := v.secrets.Delete(pos)
	if err != nil {
		return secret.Secret{}, err
	}
	if err := v.saveLocked(ctx); err != nil {
		return s, err
	}
	v.record(audit.OpSecretDelete, s.Description, nil)
	return s, nil
}

// Undelete brings the deleted secret with description back.
func (v *Vault) Undelete(ctx context.Context, description string) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireUnlocked(); err != nil {
		return -1, err
	}
	pos, err := v.secrets.Undelete(description)
	if err != nil {
		return -1, err
	}
	if err := v.saveLocked(ctx); err != nil {
		return pos, err
	}
	v.record(audit.OpSecretRestore, description, nil)
	return pos, nil
}

// Purge drops all deleted secrets for good.
func (v *Vault) Purge(ctx context.Context) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireUnlocked(); err != nil {
		return 0, err
	}
	n := v.secrets.Purge()
	if n == 0 {
		return 0, nil
	}
	if err := v.saveLocked(ctx); err != nil {
		return n, err
	}
	v.record(audit.OpSecretPurge, "", map[string]any{"count": n})
	return n, nil
}

// Normalize makes descriptions unique and trimmed. It reports whether
// anything changed; a restore point is taken first when it will.
func (v *Vault) Normalize(ctx context.Context) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireUnlocked(); err != nil {
		return false, err
	}
	if !v.secrets.NeedsNormalize() {
		return false, nil
	}
	v.checkpoint(ctx, "normalize")
	v.secrets.Normalize()
	if err := v.saveLocked(ctx); err != nil {
		return true, err
	}
	v.record(audit.OpVaultNormalize, "", nil)
	return true, nil
}

// ApplySync folds a sync result into the vault, stamps the received
// secrets Synced and saves. A nil result fails with secret.ErrSyncConflict
// and leaves the vault unchanged.
func (v *Vault) ApplySync(ctx context.Context, incoming []secret.Secret) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireUnlocked(); err != nil {
		return 0, err
	}
	if incoming == nil {
		return 0, secret.ErrSyncConflict
	}

	now := v.now()
	stamped := make([]secret.Secret, len(incoming))
	for i, s := range incoming {
		s = s.Clone()
		if !s.Deleted {
			s.Touch(secret.Synced, now)
		}
		stamped[i] = s
	}

	v.checkpoint(ctx, "sync")
	n, err := v.secrets.MergeSync(stamped)
	if err != nil {
		return 0, err
	}
	if err := v.saveLocked(ctx); err != nil {
		return n, err
	}
	v.record(audit.OpSync, "", map[string]any{"count": n})
	return n, nil
}

// Export stamps every active secret Exported and returns copies of them.
func (v *Vault) Export(ctx context.Context) ([]secret.Secret, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireUnlocked(); err != nil {
		return nil, err
	}
	now := v.now()
	for pos := 0; pos < v.secrets.Len(); pos++ {
		if _, err := v.secrets.Update(pos, func(s *secret.Secret) { s.Touch(secret.Exported, now) }); err != nil {
			return nil, err
		}
	}
	out := v.secrets.Active()
	if err := v.saveLocked(ctx); err != nil {
		return out, err
	}
	v.record(audit.OpExport, "", map[string]any{"count": len(out)})
	return out, nil
}

// Import adds incoming secrets, resolving existing descriptions by mode.
// Every incoming secret is validated before anything changes.
func (v *Vault) Import(ctx context.Context, incoming []secret.Secret, mode ConflictMode) (*ImportResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireUnlocked(); err != nil {
		return nil, err
	}
	for _, s := range incoming {
		if err := ValidateSecret(s); err != nil {
			return nil, fmt.Errorf("vault: import %q: %w", s.Description, err)
		}
		if mode == ConflictError {
			if _, err := v.secrets.Find(s.Description); err == nil {
				return nil, fmt.Errorf("%w: %q", ErrImportConflict, s.Description)
			}
		}
	}

	v.checkpoint(ctx, "import")
	now := v.now()
	result := &ImportResult{}
	for _, s := range incoming {
		s = s.Clone()
		s.Deleted = false
		if len(s.AccessLog) == 0 {
			s.Touch(secret.Created, now)
		}

		pos, err := v.secrets.Find(s.Description)
		switch {
		case err != nil:
			v.secrets.Insert(s)
			result.Added++
		case mode == ConflictOverwrite:
			if _, err := v.secrets.Update(pos, func(cur *secret.Secret) {
				log := cur.AccessLog
				*cur = s
				cur.AccessLog = append(log, secret.LogEntry{Type: secret.Changed, Time: now.UnixMilli()})
			}); err != nil {
				return result, err
			}
			result.Overwritten++
		default:
			result.Skipped++
		}
	}

	if result.Added+result.Overwritten == 0 {
		return result, nil
	}
	if err := v.saveLocked(ctx); err != nil {
		return result, err
	}
	v.record(audit.OpImport, "", map[string]any{
		"added": result.Added, "overwritten": result.Overwritten, "skipped": result.Skipped,
	})
	return result, nil
}
