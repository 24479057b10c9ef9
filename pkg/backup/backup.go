package backup

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/secretkeep/secretkeep/pkg/crypto"
)

// HMACLength is the length of the trailing container MAC.
const HMACLength = crypto.MACLength

const checksumAlgorithm = "HMAC-SHA256"

// Snapshot is what goes into a container.
type Snapshot struct {
	// Vault is an encoded vault file in the current format.
	Vault []byte
	// AuditLog is the raw audit log, kept for archival only.
	AuditLog []byte
	// VaultVersion is the format tag of Vault.
	VaultVersion int
	// SecretCount is recorded in the clear header for listings.
	SecretCount int
	// VaultSalt and VaultRounds allow master-mode containers to be opened
	// with a password after the vault itself has moved on.
	VaultSalt   []byte
	VaultRounds int
	// CreatedAt defaults to the current time.
	CreatedAt time.Time
}

// Credentials select how a container's keys are obtained on open. The
// first non-empty field wins, in the order KeyFile, Vault, Password.
type Credentials struct {
	KeyFile  string
	Vault    KeySource
	Password []byte
}

// VerifyResult contains the result of a verify operation.
type VerifyResult struct {
	// Valid indicates the backup passed all integrity checks.
	Valid bool
	// Header is set whenever the header could be parsed.
	Header *Header
	// Error is set if verification failed.
	Error string
}

// Seal writes snap to w as a container encrypted with keys. The layout is
// magic, header length, JSON header, payload length, nonce||GCM payload,
// then an HMAC over everything before it.
func Seal(w io.Writer, snap Snapshot, keys Keys, mode EncryptionMode) error {
	if len(keys.enc) != KeyLength || len(keys.mac) != KeyLength {
		return fmt.Errorf("backup: keys not initialized")
	}
	created := snap.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	header := &Header{
		Version:        FormatVersion,
		CreatedAt:      created.UTC(),
		VaultVersion:   snap.VaultVersion,
		EncryptionMode: mode,
		IncludesAudit:  len(snap.AuditLog) > 0,
		SecretCount:    snap.SecretCount,
		ChecksumAlgo:   checksumAlgorithm,
	}
	if mode == EncryptionModeMaster {
		header.VaultSalt = snap.VaultSalt
		header.VaultRounds = snap.VaultRounds
	}

	plaintext, err := EncodePayload(&Payload{Vault: snap.Vault, AuditLog: snap.AuditLog})
	if err != nil {
		return err
	}
	defer crypto.SecureWipe(plaintext)

	ciphertext, err := encryptPayload(plaintext, keys.enc)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := WriteHeader(&buf, header); err != nil {
		return err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(ciphertext))); err != nil {
		return fmt.Errorf("failed to write ciphertext length: %w", err)
	}
	buf.Write(ciphertext)
	buf.Write(crypto.ComputeHMAC(keys.mac, buf.Bytes()))

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}
	return nil
}

// Open verifies and decrypts a container.
func Open(data []byte, creds Credentials) (*Header, *Payload, error) {
	if len(data) < len(MagicNumber)+4+HMACLength {
		return nil, nil, ErrInvalidMagic
	}

	reader := bytes.NewReader(data)
	header, err := ReadHeader(reader)
	if err != nil {
		return nil, nil, err
	}
	headerEnd := len(data) - reader.Len()

	var ciphertextLen uint32
	if err := binary.Read(reader, binary.BigEndian, &ciphertextLen); err != nil {
		return nil, nil, fmt.Errorf("%w: ciphertext length", ErrTruncated)
	}
	if uint64(reader.Len()) != uint64(ciphertextLen)+HMACLength {
		return nil, nil, ErrTruncated
	}
	bodyEnd := headerEnd + 4 + int(ciphertextLen)
	ciphertext := data[headerEnd+4 : bodyEnd]
	storedHMAC := data[bodyEnd:]

	keys, err := resolveKeys(header, creds)
	if err != nil {
		return nil, nil, err
	}
	defer keys.Wipe()

	if !crypto.VerifyHMAC(keys.mac, data[:bodyEnd], storedHMAC) {
		return nil, nil, ErrIntegrityFailed
	}

	plaintext, err := decryptPayload(ciphertext, keys.enc)
	if err != nil {
		return nil, nil, err
	}
	defer crypto.SecureWipe(plaintext)

	payload, err := DecodePayload(plaintext)
	if err != nil {
		return nil, nil, err
	}
	return header, payload, nil
}

// Inspect returns the clear header without checking integrity.
func Inspect(data []byte) (*Header, error) {
	return ReadHeader(bytes.NewReader(data))
}

// Verify checks a container's integrity without returning its contents.
func Verify(data []byte, creds Credentials) *VerifyResult {
	result := &VerifyResult{}
	if h, err := Inspect(data); err == nil {
		result.Header = h
	}
	header, payload, err := Open(data, creds)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	crypto.SecureWipe(payload.Vault)
	result.Header = header
	result.Valid = true
	return result
}

func resolveKeys(header *Header, creds Credentials) (Keys, error) {
	switch {
	case creds.KeyFile != "":
		return KeysFromKeyFile(creds.KeyFile)
	case header.EncryptionMode == EncryptionModeKey:
		return Keys{}, fmt.Errorf("%w: backup was sealed with a key file", ErrNoCredentials)
	case creds.Vault != nil:
		return KeysFromVault(creds.Vault)
	case len(creds.Password) > 0:
		return KeysFromPassword(creds.Password, header.VaultSalt, header.VaultRounds)
	}
	return Keys{}, ErrNoCredentials
}
