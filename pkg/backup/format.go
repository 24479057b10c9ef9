package backup

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Magic number for backup files: "SKEEPBKP"
var MagicNumber = [8]byte{'S', 'K', 'E', 'E', 'P', 'B', 'K', 'P'}

// Current backup format version.
const FormatVersion = 1

// maxHeaderSize bounds the JSON header.
const maxHeaderSize = 1024 * 1024

// EncryptionMode specifies how the backup keys are obtained.
type EncryptionMode string

const (
	// EncryptionModeMaster derives the keys from the vault master password
	// and the vault salt recorded in the header.
	EncryptionModeMaster EncryptionMode = "master"
	// EncryptionModeKey uses a separate key file.
	EncryptionModeKey EncryptionMode = "key"
)

// Header contains backup file metadata. It is authenticated but not
// encrypted.
type Header struct {
	Version        int            `json:"version"`
	CreatedAt      time.Time      `json:"created_at"`
	VaultVersion   int            `json:"vault_version"`
	EncryptionMode EncryptionMode `json:"encryption_mode"`
	// VaultSalt and VaultRounds are set in master mode.
	VaultSalt     []byte `json:"vault_salt,omitempty"`
	VaultRounds   int    `json:"vault_rounds,omitempty"`
	IncludesAudit bool   `json:"includes_audit"`
	SecretCount   int    `json:"secret_count"`
	ChecksumAlgo  string `json:"checksum_algorithm"`
}

// Payload contains the encrypted backup data.
type Payload struct {
	// Vault is the vault file in the current format.
	Vault    []byte `json:"vault"`
	AuditLog []byte `json:"audit_log,omitempty"`
}

// WriteHeader writes the magic number and header to the writer.
func WriteHeader(w io.Writer, header *Header) error {
	if _, err := w.Write(MagicNumber[:]); err != nil {
		return fmt.Errorf("failed to write magic number: %w", err)
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header length: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

// ReadHeader reads and validates the magic number and header from the reader.
func ReadHeader(r io.Reader) (*Header, error) {
	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, ErrInvalidMagic
	}
	if magic != MagicNumber {
		return nil, ErrInvalidMagic
	}

	var headerLen uint32
	if err := binary.Read(r, binary.BigEndian, &headerLen); err != nil {
		return nil, fmt.Errorf("%w: header length", ErrTruncated)
	}
	if headerLen > maxHeaderSize {
		return nil, fmt.Errorf("header too large: %d bytes", headerLen)
	}

	headerJSON := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, fmt.Errorf("%w: header", ErrTruncated)
	}

	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, fmt.Errorf("failed to unmarshal header: %w", err)
	}
	if header.Version > FormatVersion {
		return nil, fmt.Errorf("%w: got %d, max supported %d",
			ErrUnsupportedVersion, header.Version, FormatVersion)
	}
	return &header, nil
}

// EncodePayload encodes the payload to JSON bytes.
func EncodePayload(payload *Payload) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return data, nil
}

// DecodePayload decodes JSON bytes to a payload.
func DecodePayload(data []byte) (*Payload, error) {
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return &payload, nil
}
