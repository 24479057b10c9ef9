// Package audit records vault operations in an append-only JSONL log whose
// records are chained with HMAC-SHA256, so that edits, deletions and
// reordering are detected by Verify.
//
// The HMAC key is random and stored wrapped under a key derived from the
// unlocked vault. It survives password changes through Rewrap.
package audit

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/secretkeep/secretkeep/pkg/crypto"
)

// Disk space constants
const (
	MinAuditDiskSpace = 1024 * 1024 // 1 MB minimum for audit logs
)

const (
	keyFileName   = "audit.key"
	stateFileName = "audit.meta"
	logSuffix     = ".jsonl"
	genesis       = "genesis"

	// WrapLabel is the subkey label the vault derives the wrapping key from.
	WrapLabel = "secretkeep audit key wrap"
)

// Operation types for audit logging
const (
	OpVaultCreate       = "vault.create"
	OpVaultUnlock       = "vault.unlock"
	OpVaultUnlockFailed = "vault.unlock_failed"
	OpVaultLock         = "vault.lock"
	OpVaultMigrate      = "vault.migrate"
	OpVaultPassword     = "vault.change_password"
	OpVaultReset        = "vault.reset"
	OpVaultNormalize    = "vault.normalize"

	OpSecretAdd     = "secret.add"
	OpSecretUpdate  = "secret.update"
	OpSecretReveal  = "secret.reveal"
	OpSecretDelete  = "secret.delete"
	OpSecretRestore = "secret.undelete"
	OpSecretPurge   = "secret.purge"
	OpSecretList    = "secret.list"
	OpSecretExists  = "secret.exists"
	OpSecretMasked  = "secret.get_masked"

	OpSync          = "vault.sync"
	OpExport        = "vault.export"
	OpImport        = "vault.import"
	OpBackupCreate  = "backup.create"
	OpBackupRestore = "backup.restore"
)

// Source identifies where the operation originated
const (
	SourceCLI  = "cli"
	SourceMCP  = "mcp"
	SourceSync = "sync"
)

// Result indicates the outcome of an operation
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultDenied  = "denied"
)

var (
	// ErrKeyNotSet is returned when logging while the vault is locked.
	ErrKeyNotSet = errors.New("audit: HMAC key not set")

	// ErrKeyUnavailable means the stored key cannot be unwrapped with the
	// vault's current key material.
	ErrKeyUnavailable = errors.New("audit: stored key cannot be unwrapped")
)

// KeySource derives purpose-bound keys from the unlocked vault.
// *cipher.Info implements it.
type KeySource interface {
	DeriveSubkey(label string) ([]byte, error)
}

// Event is a single audit log record.
type Event struct {
	Version   int    `json:"v"`
	ID        string `json:"id"`
	Timestamp string `json:"ts"` // RFC 3339 nanosecond precision

	Operation string `json:"op"`
	// Secret is the HMAC of the secret description, never the description.
	Secret string `json:"secret,omitempty"`

	Actor   Actor          `json:"actor"`
	Result  string         `json:"result"`
	Error   *ErrorInfo     `json:"error,omitempty"`
	Context map[string]any `json:"ctx,omitempty"`

	Chain Chain `json:"chain"`
}

// Actor represents who performed the operation
type Actor struct {
	Source    string `json:"source"`
	SessionID string `json:"session_id"`
}

// ErrorInfo contains error details
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Chain provides HMAC chain for tamper detection
type Chain struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
	HMAC     string `json:"hmac"`
}

// Logger handles audit log writing with HMAC chain
type Logger struct {
	path      string
	mu        sync.Mutex
	hmacKey   []byte // nil while the vault is locked
	sequence  int64
	prevHash  string
	sessionID string
	now       func() time.Time
	logger    *zap.Logger
}

// Option configures a Logger.
type Option func(*Logger)

// WithLogger sets the logger used for non-fatal warnings.
func WithLogger(l *zap.Logger) Option {
	return func(a *Logger) { a.logger = l }
}

// WithClock sets the time source for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Logger) { a.now = now }
}

// NewLogger returns a logger writing into dir. It cannot log until Init or
// Open installs a key.
func NewLogger(dir string, opts ...Option) *Logger {
	l := &Logger{
		path:      dir,
		prevHash:  genesis,
		sessionID: uuid.NewString(),
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the audit log directory path
func (l *Logger) Path() string {
	return l.path
}

// Init starts a new chain: it generates a fresh key, stores it wrapped under
// ks, and removes any previous log.
func (l *Logger) Init(ks KeySource) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.initLocked(ks)
}

func (l *Logger) initLocked(ks KeySource) error {
	if err := os.MkdirAll(l.path, 0700); err != nil {
		return fmt.Errorf("audit: failed to create directory: %w", err)
	}
	if err := l.removeLogs(); err != nil {
		return err
	}

	key, err := crypto.RandomBytes(crypto.KeyLength)
	if err != nil {
		return fmt.Errorf("audit: failed to generate key: %w", err)
	}
	if err := l.writeKey(ks, key); err != nil {
		crypto.SecureWipe(key)
		return err
	}
	l.setKey(key)
	l.sequence = 0
	l.prevHash = genesis
	return nil
}

// Open unwraps the stored key with ks and resumes the chain. A vault without
// a stored key (one that predates the audit log) starts a new chain.
func (l *Logger) Open(ks KeySource) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	wrapped, err := os.ReadFile(filepath.Join(l.path, keyFileName))
	if errors.Is(err, os.ErrNotExist) {
		return l.initLocked(ks)
	}
	if err != nil {
		return fmt.Errorf("audit: failed to read key: %w", err)
	}
	key, err := unwrapKey(ks, wrapped)
	if err != nil {
		return err
	}
	l.setKey(key)
	if err := l.loadChainState(); err != nil {
		l.sequence = 0
		l.prevHash = genesis
	}
	return nil
}

// Rewrap stores the current key wrapped under ks. Called after a password
// change so the chain remains verifiable.
func (l *Logger) Rewrap(ks KeySource) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hmacKey == nil {
		return ErrKeyNotSet
	}
	return l.writeKey(ks, l.hmacKey)
}

// Close wipes the key from memory. The log stays on disk.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	crypto.SecureWipe(l.hmacKey)
	l.hmacKey = nil
}

// Remove deletes the log, its key and chain state.
func (l *Logger) Remove() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	crypto.SecureWipe(l.hmacKey)
	l.hmacKey = nil
	if err := l.removeLogs(); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(l.path, keyFileName)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("audit: failed to remove key: %w", err)
	}
	return nil
}

// Active reports whether a key is installed.
func (l *Logger) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hmacKey != nil
}

func (l *Logger) setKey(key []byte) {
	crypto.SecureWipe(l.hmacKey)
	l.hmacKey = key
}

func (l *Logger) writeKey(ks KeySource, key []byte) error {
	wrapKey, err := ks.DeriveSubkey(WrapLabel)
	if err != nil {
		return fmt.Errorf("audit: failed to derive wrapping key: %w", err)
	}
	defer crypto.SecureWipe(wrapKey)

	ciphertext, nonce, err := crypto.Encrypt(wrapKey, key)
	if err != nil {
		return fmt.Errorf("audit: failed to wrap key: %w", err)
	}
	return writeFileAtomic(filepath.Join(l.path, keyFileName), append(nonce, ciphertext...))
}

func unwrapKey(ks KeySource, wrapped []byte) ([]byte, error) {
	if len(wrapped) < crypto.NonceLength {
		return nil, ErrKeyUnavailable
	}
	wrapKey, err := ks.DeriveSubkey(WrapLabel)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to derive wrapping key: %w", err)
	}
	defer crypto.SecureWipe(wrapKey)

	key, err := crypto.Decrypt(wrapKey, wrapped[crypto.NonceLength:], wrapped[:crypto.NonceLength])
	if err != nil {
		return nil, ErrKeyUnavailable
	}
	return key, nil
}

// Log records an audit event. description, if set, is stored as its HMAC.
func (l *Logger) Log(op, source, result, description string, errInfo *ErrorInfo, ctx map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hmacKey == nil {
		return ErrKeyNotSet
	}
	if err := os.MkdirAll(l.path, 0700); err != nil {
		return fmt.Errorf("audit: failed to create directory: %w", err)
	}
	if err := l.checkDiskSpace(); err != nil {
		return err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("audit: failed to generate event id: %w", err)
	}
	event := Event{
		Version:   1,
		ID:        id.String(),
		Timestamp: l.now().UTC().Format(time.RFC3339Nano),
		Operation: op,
		Actor: Actor{
			Source:    source,
			SessionID: l.sessionID,
		},
		Result:  result,
		Error:   errInfo,
		Context: ctx,
	}
	if description != "" {
		event.Secret = hex.EncodeToString(crypto.ComputeHMAC(l.hmacKey, []byte(description)))
	}

	event.Chain.Sequence = l.sequence + 1
	event.Chain.PrevHash = l.prevHash
	event.Chain.HMAC = hex.EncodeToString(crypto.ComputeHMAC(l.hmacKey, buildRecordData(&event)))

	if err := l.writeEvent(&event); err != nil {
		return err
	}
	l.sequence = event.Chain.Sequence
	l.prevHash = event.Chain.HMAC
	return l.saveChainState()
}

// LogSuccess is a convenience method for successful operations
func (l *Logger) LogSuccess(op, source, description string) error {
	return l.Log(op, source, ResultSuccess, description, nil, nil)
}

// LogError is a convenience method for failed operations
func (l *Logger) LogError(op, source, description, errCode, errMsg string) error {
	return l.Log(op, source, ResultError, description, &ErrorInfo{Code: errCode, Message: errMsg}, nil)
}

// LogDenied is a convenience method for denied operations
func (l *Logger) LogDenied(op, source, description, reason string) error {
	return l.Log(op, source, ResultDenied, description, nil, map[string]any{"reason": reason})
}

// buildRecordData creates the data to be HMACed. Every field except the
// HMAC itself is covered; context keys are sorted for a stable encoding.
func buildRecordData(event *Event) []byte {
	errorData := ""
	if event.Error != nil {
		errorData = event.Error.Code + "|" + event.Error.Message
	}

	var contextData strings.Builder
	keys := make([]string, 0, len(event.Context))
	for k := range event.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&contextData, "%s=%v|", k, event.Context[k])
	}

	return []byte(fmt.Sprintf("%d|%s|%s|%s|%s|%s|%s|%s|%s|%s|%d|%s",
		event.Version,
		event.ID,
		event.Timestamp,
		event.Operation,
		event.Secret,
		event.Actor.Source,
		event.Actor.SessionID,
		event.Result,
		errorData,
		contextData.String(),
		event.Chain.Sequence,
		event.Chain.PrevHash,
	))
}

// writeEvent appends an event to the current month's log file.
func (l *Logger) writeEvent(event *Event) error {
	name := l.now().UTC().Format("2006-01") + logSuffix
	f, err := os.OpenFile(filepath.Join(l.path, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("audit: failed to open log file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: failed to write event: %w", err)
	}
	return nil
}

type chainState struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
}

func (l *Logger) loadChainState() error {
	data, err := os.ReadFile(filepath.Join(l.path, stateFileName))
	if err != nil {
		return err
	}
	var state chainState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	l.sequence = state.Sequence
	l.prevHash = state.PrevHash
	return nil
}

func (l *Logger) saveChainState() error {
	data, err := json.Marshal(chainState{Sequence: l.sequence, PrevHash: l.prevHash})
	if err != nil {
		return fmt.Errorf("audit: failed to marshal chain state: %w", err)
	}
	return writeFileAtomic(filepath.Join(l.path, stateFileName), data)
}

func (l *Logger) removeLogs() error {
	files, err := l.logFiles()
	if err != nil {
		return err
	}
	files = append(files, filepath.Join(l.path, stateFileName))
	for _, f := range files {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("audit: failed to remove %s: %w", f, err)
		}
	}
	return nil
}

// logFiles returns the log files in chronological order.
func (l *Logger) logFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(l.path, "*"+logSuffix))
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list log files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("audit: failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("audit: failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
