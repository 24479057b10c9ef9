package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/secretkeep/secretkeep/pkg/audit"
	"github.com/secretkeep/secretkeep/pkg/backup"
	"github.com/secretkeep/secretkeep/pkg/cipher"
	"github.com/secretkeep/secretkeep/pkg/crypto"
	"github.com/secretkeep/secretkeep/pkg/secret"
)

// ErrRestorePointsDisabled is returned when the vault was built without
// WithRestorePoints.
var ErrRestorePointsDisabled = errors.New("vault: restore points are not enabled")

// BackupOptions configures ExportBackup.
type BackupOptions struct {
	// KeyFile seals the backup with a key file instead of the vault key.
	KeyFile string
	// IncludeAudit adds the raw audit log for archival.
	IncludeAudit bool
}

// snapshotLocked encodes the unlocked vault and derives container keys from
// the session.
func (v *Vault) snapshotLocked() (backup.Snapshot, backup.Keys, error) {
	var (
		snap backup.Snapshot
		keys backup.Keys
	)
	err := v.session.Do(func(info *cipher.Info) error {
		all := v.secrets.AllAndDeleted()
		data, err := Encode(all, info)
		if err != nil {
			return err
		}
		keys, err = backup.KeysFromVault(info)
		if err != nil {
			return err
		}
		snap = backup.Snapshot{
			Vault:        data,
			VaultVersion: int(cipher.Current),
			SecretCount:  v.secrets.Len(),
			VaultSalt:    append([]byte(nil), info.Salt...),
			VaultRounds:  info.Rounds,
			CreatedAt:    v.now(),
		}
		return nil
	})
	if errors.Is(err, cipher.ErrNoSession) {
		return snap, keys, ErrVaultLocked
	}
	return snap, keys, err
}

// CreateRestorePoint stores the unlocked vault as a new restore point and
// prunes the oldest ones beyond the configured count.
func (v *Vault) CreateRestorePoint(ctx context.Context) (backup.Point, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.createPointLocked(ctx)
}

func (v *Vault) createPointLocked(ctx context.Context) (backup.Point, error) {
	if v.points == nil {
		return backup.Point{}, ErrRestorePointsDisabled
	}
	snap, keys, err := v.snapshotLocked()
	if err != nil {
		return backup.Point{}, err
	}
	defer keys.Wipe()

	p, err := v.points.Save(ctx, snap, keys)
	if err != nil {
		return backup.Point{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if v.keep > 0 {
		if _, err := v.points.Prune(ctx, v.keep, 0); err != nil {
			v.logger.Warn("failed to prune restore points", zap.Error(err))
		}
	}
	v.record(audit.OpBackupCreate, "", map[string]any{"point": p.Name})
	return p, nil
}

// checkpoint takes a restore point before a bulk change. Failures are
// logged and do not stop the change.
func (v *Vault) checkpoint(ctx context.Context, reason string) {
	if v.points == nil {
		return
	}
	if _, err := v.createPointLocked(ctx); err != nil {
		v.logger.Warn("failed to create restore point", zap.String("before", reason), zap.Error(err))
	}
}

// RestorePoints lists restore points, newest first.
func (v *Vault) RestorePoints(ctx context.Context) ([]backup.Point, error) {
	if v.points == nil {
		return nil, ErrRestorePointsDisabled
	}
	return v.points.List(ctx)
}

// PruneRestorePoints keeps the configured number of restore points.
func (v *Vault) PruneRestorePoints(ctx context.Context, keep int) (int, error) {
	if v.points == nil {
		return 0, ErrRestorePointsDisabled
	}
	if keep <= 0 {
		keep = v.keep
	}
	return v.points.Prune(ctx, keep, 0)
}

// RestorePointStale reports whether the newest restore point is older than
// the configured maximum age, or there is none.
func (v *Vault) RestorePointStale(ctx context.Context) (bool, time.Duration, error) {
	if v.points == nil {
		return false, 0, ErrRestorePointsDisabled
	}
	age, ok, err := v.points.NewestAge(ctx)
	if err != nil {
		return false, 0, err
	}
	if !ok {
		return true, 0, nil
	}
	return v.maxAge > 0 && age > v.maxAge, age, nil
}

// RestoreFrom replaces the unlocked vault's contents with the named restore
// point and saves them under the current password. password is the master
// password that was in effect when the point was made; nil means the
// current session key, which only opens points made since the last
// password change. The current state is checkpointed first.
func (v *Vault) RestoreFrom(ctx context.Context, name string, password []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.points == nil {
		return 0, ErrRestorePointsDisabled
	}
	if err := v.requireUnlocked(); err != nil {
		return 0, err
	}
	data, err := v.points.Load(ctx, name)
	if errors.Is(err, backup.ErrPointNotFound) {
		return 0, fmt.Errorf("%w: %s", ErrRestorePoint, name)
	}
	if err != nil {
		return 0, err
	}
	return v.restoreLocked(ctx, data, password, "", name)
}

// ExportBackup writes the unlocked vault to w as a backup container, sealed
// with the vault key or a key file.
func (v *Vault) ExportBackup(ctx context.Context, w io.Writer, opts BackupOptions) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	snap, keys, err := v.snapshotLocked()
	if err != nil {
		return err
	}
	mode := backup.EncryptionModeMaster
	if opts.KeyFile != "" {
		keys.Wipe()
		keys, err = backup.KeysFromKeyFile(opts.KeyFile)
		if err != nil {
			return err
		}
		mode = backup.EncryptionModeKey
	}
	defer keys.Wipe()

	if opts.IncludeAudit && v.auditLog != nil {
		raw, err := v.auditLog.Raw()
		if err != nil {
			v.logger.Warn("backup without audit log", zap.Error(err))
		} else {
			snap.AuditLog = raw
		}
	}

	var buf bytes.Buffer
	if err := backup.Seal(&buf, snap, keys, mode); err != nil {
		return err
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("vault: failed to write backup: %w", err)
	}
	v.record(audit.OpBackupCreate, "", map[string]any{"mode": string(mode), "audit": len(snap.AuditLog) > 0})
	return nil
}

// RestoreBackup replaces the unlocked vault's contents with a backup
// container. password opens master-mode containers made under an earlier
// password and is also needed for the vault inside a key-file container in
// that case.
func (v *Vault) RestoreBackup(ctx context.Context, data, password []byte, keyFile string) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireUnlocked(); err != nil {
		return 0, err
	}
	return v.restoreLocked(ctx, data, password, keyFile, "file")
}

func (v *Vault) restoreLocked(ctx context.Context, data, password []byte, keyFile, from string) (int, error) {
	secrets, err := v.openContainer(data, password, keyFile)
	if err != nil {
		return 0, err
	}

	v.checkpoint(ctx, "restore")
	v.secrets.Replace(secrets)
	if err := v.saveLocked(ctx); err != nil {
		return 0, err
	}
	n := v.secrets.Len()
	v.record(audit.OpBackupRestore, "", map[string]any{"from": from, "secrets": n})
	v.logger.Info("vault restored", zap.String("from", from), zap.Int("secrets", n))
	return n, nil
}

// openContainer decrypts a container and decodes the vault inside it,
// with the session key when password is empty.
func (v *Vault) openContainer(data, password []byte, keyFile string) ([]secret.Secret, error) {
	var secrets []secret.Secret
	err := v.session.Do(func(info *cipher.Info) error {
		creds := backup.Credentials{KeyFile: keyFile, Password: password}
		if len(password) == 0 {
			creds.Vault = info
		}
		_, payload, err := backup.Open(data, creds)
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(payload.Vault)

		if len(password) == 0 {
			s, ok := Decode(payload.Vault, info)
			if !ok {
				return ErrInvalidPasswordOrCorrupt
			}
			secrets = s
			return nil
		}
		res, err := Open(payload.Vault, password, v.logger)
		if err != nil {
			return err
		}
		res.Info.Wipe()
		secrets = res.Secrets
		return nil
	})
	if errors.Is(err, cipher.ErrNoSession) {
		return nil, ErrVaultLocked
	}
	return secrets, err
}
