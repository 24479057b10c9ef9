package vault

import "errors"

var (
	ErrVaultAlreadyExists = errors.New("vault: vault already exists")
	ErrVaultNotFound      = errors.New("vault: vault not found")
	ErrVaultLocked        = errors.New("vault: vault is locked")
	ErrAlreadyUnlocked    = errors.New("vault: vault is already unlocked")

	// ErrInvalidPasswordOrCorrupt is the only outcome of a failed unlock. It
	// deliberately does not say which of the two happened.
	ErrInvalidPasswordOrCorrupt = errors.New("vault: invalid password or corrupt vault")

	// ErrPersistence wraps storage failures. The in-memory vault is intact
	// and the operation can be retried.
	ErrPersistence = errors.New("vault: failed to persist vault")

	ErrNotCurrentVersion = errors.New("vault: only the current format can be written")
	ErrTooManyAttempts   = errors.New("vault: too many failed unlock attempts")
	ErrCooldownActive    = errors.New("vault: cooldown period active")
	ErrWeakPassword      = errors.New("vault: master password does not meet requirements")

	ErrDescriptionEmpty   = errors.New("vault: description must not be empty")
	ErrDescriptionTooLong = errors.New("vault: description too long")
	ErrFieldTooLong       = errors.New("vault: field too long")
	ErrNoteTooLarge       = errors.New("vault: note too large")
	ErrRestorePoint       = errors.New("vault: restore point not found")
	ErrImportConflict     = errors.New("vault: imported secret already exists")
)
