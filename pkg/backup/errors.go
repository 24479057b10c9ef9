// Package backup seals vault snapshots into an authenticated, encrypted
// container and keeps a rotating set of them as restore points.
package backup

import "errors"

var (
	// ErrInvalidMagic indicates the data is not a backup container.
	ErrInvalidMagic = errors.New("invalid backup file: magic number mismatch")

	// ErrUnsupportedVersion indicates the backup format version is not supported.
	ErrUnsupportedVersion = errors.New("unsupported backup format version")

	// ErrIntegrityFailed indicates the HMAC verification failed: wrong
	// password or key file, or a modified file.
	ErrIntegrityFailed = errors.New("backup integrity check failed: HMAC mismatch")

	// ErrDecryptionFailed indicates decryption failed after a valid HMAC.
	ErrDecryptionFailed = errors.New("backup decryption failed: corrupted data")

	// ErrTruncated indicates the container ends early.
	ErrTruncated = errors.New("backup file truncated")

	// ErrInvalidKeyFile indicates the key file is invalid or wrong size.
	ErrInvalidKeyFile = errors.New("invalid key file: must be exactly 32 bytes")

	// ErrEmptyPassword indicates an empty password was provided.
	ErrEmptyPassword = errors.New("password cannot be empty")

	// ErrNoCredentials indicates neither a password nor a key file was given.
	ErrNoCredentials = errors.New("password or key file is required")

	// ErrPointNotFound is returned for an unknown restore point name.
	ErrPointNotFound = errors.New("restore point not found")
)
