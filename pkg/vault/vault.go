// Package vault stores an ordered collection of secrets in a single
// encrypted blob. It reads every historical file format, migrates older
// files to the current one on unlock, and writes only the current format.
package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/secretkeep/secretkeep/pkg/audit"
	"github.com/secretkeep/secretkeep/pkg/backup"
	"github.com/secretkeep/secretkeep/pkg/cipher"
	"github.com/secretkeep/secretkeep/pkg/persist"
	"github.com/secretkeep/secretkeep/pkg/secret"
	"github.com/secretkeep/secretkeep/pkg/security"
)

const (
	// DefaultName is the blob name of the vault in its store.
	DefaultName = "secrets"

	// Input validation limits
	MaxDescriptionLength = 256
	MaxFieldLength       = 1024
	MaxNoteSize          = 10 * 1024

	// DefaultKeepPoints is how many restore points are kept by default.
	DefaultKeepPoints = 10
	// DefaultMaxPointAge is when the newest restore point counts as stale.
	DefaultMaxPointAge = 7 * 24 * time.Hour
)

// Vault manages one vault blob and its unlocked contents.
type Vault struct {
	mu sync.Mutex // serializes vault operations

	store  persist.Store
	name   string
	rounds int
	source string
	logger *zap.Logger
	now    func() time.Time

	auditLog  *audit.Logger
	points    *backup.Manager
	usePoints bool
	keep      int
	maxAge    time.Duration

	session *cipher.Session
	secrets *secret.Collection
	version cipher.Version
}

// Option configures a Vault.
type Option func(*Vault)

// WithName sets the blob name of the vault.
func WithName(name string) Option {
	return func(v *Vault) { v.name = name }
}

// WithRounds sets the key derivation rounds used for new vaults and
// password changes.
func WithRounds(rounds int) Option {
	return func(v *Vault) { v.rounds = rounds }
}

func WithLogger(l *zap.Logger) Option {
	return func(v *Vault) { v.logger = l }
}

// WithAudit enables the audit log.
func WithAudit(l *audit.Logger) Option {
	return func(v *Vault) { v.auditLog = l }
}

// WithRestorePoints enables restore points kept in the vault's store. keep
// bounds how many are retained; maxAge is when the newest one is stale.
func WithRestorePoints(keep int, maxAge time.Duration) Option {
	return func(v *Vault) {
		v.keep = keep
		v.maxAge = maxAge
		v.usePoints = true
	}
}

// WithClock overrides time.Now for access log entries and cooldowns.
func WithClock(now func() time.Time) Option {
	return func(v *Vault) { v.now = now }
}

// WithSource sets the actor recorded in audit events.
func WithSource(source string) Option {
	return func(v *Vault) { v.source = source }
}

// New returns a locked Vault over store.
func New(store persist.Store, opts ...Option) *Vault {
	v := &Vault{
		store:   store,
		name:    DefaultName,
		rounds:  cipher.DefaultRounds,
		source:  audit.SourceCLI,
		logger:  zap.NewNop(),
		now:     time.Now,
		keep:    DefaultKeepPoints,
		maxAge:  DefaultMaxPointAge,
		session: cipher.NewSession(),
		secrets: secret.NewCollection(nil),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.usePoints {
		v.points = backup.NewManager(store,
			backup.WithManagerLogger(v.logger), backup.WithManagerClock(v.now))
	}
	return v
}

// Name returns the vault's blob name.
func (v *Vault) Name() string {
	return v.name
}

// Secrets returns the unlocked collection. It is empty while locked.
// Changes made directly through it are persisted by the next Save.
func (v *Vault) Secrets() *secret.Collection {
	return v.secrets
}

// Version returns the format of the stored vault as last read or written.
func (v *Vault) Version() cipher.Version {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.version
}

// Audit returns the audit logger, or nil when auditing is off.
func (v *Vault) Audit() *audit.Logger {
	return v.auditLog
}

// Exists reports whether the vault blob is present.
func (v *Vault) Exists(ctx context.Context) (bool, error) {
	_, err := v.store.LoadRaw(ctx, v.name)
	if errors.Is(err, persist.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("vault: failed to read vault: %w", err)
	}
	return true, nil
}

// Create writes a new empty vault sealed with password and leaves it
// unlocked.
func (v *Vault) Create(ctx context.Context, password []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	exists, err := v.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return ErrVaultAlreadyExists
	}
	if err := validatePassword(password); err != nil {
		return err
	}

	info, err := cipher.NewCurrent(password, v.rounds)
	if err != nil {
		return fmt.Errorf("vault: failed to derive key: %w", err)
	}
	v.session.Save(info)
	v.secrets.Clear()
	v.version = cipher.Current

	if err := v.saveLocked(ctx); err != nil {
		v.session.Clear()
		return err
	}
	if err := v.clearLockState(ctx); err != nil {
		v.logger.Warn("failed to clear lock state", zap.Error(err))
	}

	if v.auditLog != nil {
		err := v.session.Do(func(info *cipher.Info) error { return v.auditLog.Init(info) })
		if err != nil {
			v.logger.Warn("failed to initialize audit log", zap.Error(err))
		}
	}
	v.record(audit.OpVaultCreate, "", nil)
	v.logger.Info("vault created", zap.String("name", v.name), zap.Int("rounds", v.rounds))
	return nil
}

// Unlock decrypts the vault with password. Files in an older format are
// migrated: they are re-encoded in the current format with a fresh salt and
// written back before Unlock returns. If that write fails the vault stays
// unlocked and ErrPersistence is returned; Save retries it.
func (v *Vault) Unlock(ctx context.Context, password []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.session.Active() {
		return ErrAlreadyUnlocked
	}

	data, err := v.store.LoadRaw(ctx, v.name)
	if errors.Is(err, persist.ErrNotFound) {
		return ErrVaultNotFound
	}
	if err != nil {
		return fmt.Errorf("vault: failed to read vault: %w", err)
	}

	if remaining, err := v.checkCooldown(ctx); err != nil {
		if errors.Is(err, ErrCooldownActive) {
			return fmt.Errorf("%w: please wait %v", ErrCooldownActive, remaining.Round(time.Second))
		}
		return err
	}

	res, err := Open(data, password, v.logger)
	if err != nil {
		if !errors.Is(err, ErrInvalidPasswordOrCorrupt) {
			return err
		}
		cooldown, recErr := v.recordFailedAttempt(ctx)
		if recErr != nil {
			v.logger.Warn("failed to record unlock attempt", zap.Error(recErr))
		}
		if cooldown > 0 {
			return fmt.Errorf("%w: %w: cooldown activated for %v",
				ErrInvalidPasswordOrCorrupt, ErrTooManyAttempts, cooldown)
		}
		return err
	}

	failed := 0
	if state, err := v.loadLockState(ctx); err == nil {
		failed = state.FailedAttempts
	}
	if err := v.clearLockState(ctx); err != nil {
		v.logger.Warn("failed to clear lock state", zap.Error(err))
	}

	v.session.Save(res.Info)
	v.secrets.Replace(res.Secrets)
	v.version = res.Version
	v.openAudit()

	if failed > 0 {
		v.recordResult(audit.OpVaultUnlockFailed, audit.ResultError, map[string]any{"attempts": failed})
	}
	v.record(audit.OpVaultUnlock, "", map[string]any{"version": res.Version.String()})
	v.logger.Debug("vault unlocked",
		zap.Stringer("version", res.Version), zap.Int("secrets", v.secrets.Len()))

	if res.Migrated {
		if err := v.saveLocked(ctx); err != nil {
			return err
		}
		v.record(audit.OpVaultMigrate, "", map[string]any{
			"from": res.Version.String(), "to": cipher.Current.String(),
		})
	}
	return nil
}

// Lock wipes the session key and empties the collection.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.session.Active() {
		v.record(audit.OpVaultLock, "", nil)
	}
	if v.auditLog != nil {
		v.auditLog.Close()
	}
	v.session.Clear()
	v.secrets.Clear()
}

// IsLocked reports whether the vault is locked.
func (v *Vault) IsLocked() bool {
	return !v.session.Active()
}

// Save encodes the collection, tombstones included, and writes it. On
// failure the in-memory state is untouched and the error wraps
// ErrPersistence.
func (v *Vault) Save(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.saveLocked(ctx)
}

func (v *Vault) saveLocked(ctx context.Context) error {
	data, err := v.encodeLocked()
	if err != nil {
		return err
	}
	if err := v.store.SaveRaw(ctx, v.name, data); err != nil {
		v.logger.Error("failed to write vault", zap.String("name", v.name), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	v.version = cipher.Current
	return nil
}

func (v *Vault) encodeLocked() ([]byte, error) {
	var data []byte
	err := v.session.Do(func(info *cipher.Info) error {
		var err error
		data, err = Encode(v.secrets.AllAndDeleted(), info)
		return err
	})
	if errors.Is(err, cipher.ErrNoSession) {
		return nil, ErrVaultLocked
	}
	return data, err
}

// ChangePassword re-encrypts the vault under newPassword with a fresh salt.
// oldPassword must open the stored file. rounds <= 0 keeps the configured
// rounds.
func (v *Vault) ChangePassword(ctx context.Context, oldPassword, newPassword []byte, rounds int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireUnlocked(); err != nil {
		return err
	}
	data, err := v.store.LoadRaw(ctx, v.name)
	if err != nil {
		return fmt.Errorf("vault: failed to read vault: %w", err)
	}
	res, err := Open(data, oldPassword, v.logger)
	if err != nil {
		return err
	}
	res.Info.Wipe()

	if err := validatePassword(newPassword); err != nil {
		return err
	}
	if rounds <= 0 {
		rounds = v.rounds
	}

	v.checkpoint(ctx, "change password")

	info, err := cipher.NewCurrent(newPassword, rounds)
	if err != nil {
		return fmt.Errorf("vault: failed to derive key: %w", err)
	}
	encoded, err := Encode(v.secrets.AllAndDeleted(), info)
	if err != nil {
		info.Wipe()
		return err
	}
	if err := v.store.SaveRaw(ctx, v.name, encoded); err != nil {
		info.Wipe()
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	v.session.Save(info)
	v.version = cipher.Current

	if v.auditLog != nil {
		err := v.session.Do(func(info *cipher.Info) error { return v.auditLog.Rewrap(info) })
		if err != nil {
			v.logger.Warn("failed to rewrap audit key", zap.Error(err))
		}
	}
	v.record(audit.OpVaultPassword, "", map[string]any{"rounds": rounds})
	return nil
}

// Reset permanently deletes the vault blob, its lock state and the audit
// log. Restore points are kept. This is the forgotten password path.
func (v *Vault) Reset(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.store.Delete(ctx, v.name); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := v.clearLockState(ctx); err != nil {
		v.logger.Warn("failed to clear lock state", zap.Error(err))
	}
	if v.auditLog != nil {
		if err := v.auditLog.Remove(); err != nil {
			v.logger.Warn("failed to remove audit log", zap.Error(err))
		}
	}
	v.session.Clear()
	v.secrets.Clear()
	v.version = 0
	v.logger.Info("vault reset", zap.String("name", v.name))
	return nil
}

func (v *Vault) requireUnlocked() error {
	if !v.session.Active() {
		return ErrVaultLocked
	}
	return nil
}

func (v *Vault) openAudit() {
	if v.auditLog == nil {
		return
	}
	err := v.session.Do(func(info *cipher.Info) error { return v.auditLog.Open(info) })
	if err != nil {
		v.logger.Warn("audit log unavailable", zap.Error(err))
	}
}

func (v *Vault) record(op, description string, ctx map[string]any) {
	v.recordEvent(op, audit.ResultSuccess, description, ctx)
}

func (v *Vault) recordResult(op, result string, ctx map[string]any) {
	v.recordEvent(op, result, "", ctx)
}

func (v *Vault) recordEvent(op, result, description string, ctx map[string]any) {
	if v.auditLog == nil || !v.auditLog.Active() {
		return
	}
	if err := v.auditLog.Log(op, v.source, result, description, nil, ctx); err != nil {
		v.logger.Warn("failed to write audit event", zap.String("op", op), zap.Error(err))
	}
}

func validatePassword(password []byte) error {
	result := security.ValidateMasterPassword(string(password))
	if !result.Valid {
		return fmt.Errorf("%w: %s", ErrWeakPassword, strings.Join(result.Warnings, "; "))
	}
	return nil
}

// ValidateSecret checks the limits every stored secret must meet.
func ValidateSecret(s secret.Secret) error {
	if strings.TrimSpace(s.Description) == "" {
		return ErrDescriptionEmpty
	}
	if len(s.Description) > MaxDescriptionLength {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrDescriptionTooLong, len(s.Description), MaxDescriptionLength)
	}
	for _, f := range []struct{ name, value string }{
		{"username", s.Username}, {"password", s.Password}, {"email", s.Email},
	} {
		if len(f.value) > MaxFieldLength {
			return fmt.Errorf("%w: %s is %d bytes (max %d)", ErrFieldTooLong, f.name, len(f.value), MaxFieldLength)
		}
	}
	if len(s.Note) > MaxNoteSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrNoteTooLarge, len(s.Note), MaxNoteSize)
	}
	return nil
}
