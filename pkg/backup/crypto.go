package backup

import (
	"fmt"
	"os"

	"github.com/secretkeep/secretkeep/pkg/cipher"
	"github.com/secretkeep/secretkeep/pkg/crypto"
)

// KeyLength is the length of encryption keys in bytes (256 bits).
const KeyLength = crypto.KeyLength

// Subkey labels for the container keys.
const (
	labelEncryption = "secretkeep backup encryption"
	labelMAC        = "secretkeep backup mac"
)

// KeySource derives purpose-bound keys from an unlocked vault.
type KeySource interface {
	DeriveSubkey(label string) ([]byte, error)
}

// Keys are the encryption and MAC keys of one container.
type Keys struct {
	enc []byte
	mac []byte
}

// Wipe zeroes the keys.
func (k *Keys) Wipe() {
	crypto.SecureWipe(k.enc)
	crypto.SecureWipe(k.mac)
	k.enc, k.mac = nil, nil
}

// KeysFromVault derives container keys from the unlocked vault's cipher
// state. Restore points are sealed this way, so they can be created
// without asking for the password again.
func KeysFromVault(ks KeySource) (Keys, error) {
	enc, err := ks.DeriveSubkey(labelEncryption)
	if err != nil {
		return Keys{}, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	mac, err := ks.DeriveSubkey(labelMAC)
	if err != nil {
		crypto.SecureWipe(enc)
		return Keys{}, fmt.Errorf("failed to derive MAC key: %w", err)
	}
	return Keys{enc: enc, mac: mac}, nil
}

// KeysFromPassword rebuilds the keys of a master-mode container from the
// password that was current when it was sealed.
func KeysFromPassword(password, vaultSalt []byte, rounds int) (Keys, error) {
	if len(password) == 0 {
		return Keys{}, ErrEmptyPassword
	}
	info, err := cipher.Derive(cipher.Current, password, vaultSalt, rounds)
	if err != nil {
		return Keys{}, err
	}
	defer info.Wipe()
	return KeysFromVault(info)
}

// KeysFromKeyFile derives container keys from a 32-byte key file.
func KeysFromKeyFile(path string) (Keys, error) {
	master, err := ReadKeyFile(path)
	if err != nil {
		return Keys{}, err
	}
	defer crypto.SecureWipe(master)

	enc, mac, err := crypto.ExpandKeys(master, nil, labelEncryption, labelMAC)
	if err != nil {
		return Keys{}, fmt.Errorf("failed to derive keys: %w", err)
	}
	return Keys{enc: enc, mac: mac}, nil
}

// encryptPayload encrypts with AES-256-GCM and returns nonce||ciphertext.
func encryptPayload(plaintext, key []byte) ([]byte, error) {
	ciphertext, nonce, err := crypto.Encrypt(key, plaintext)
	if err != nil {
		return nil, fmt.Errorf("encryption failed: %w", err)
	}
	return append(nonce, ciphertext...), nil
}

func decryptPayload(data, key []byte) ([]byte, error) {
	if len(data) < crypto.NonceLength {
		return nil, ErrDecryptionFailed
	}
	plaintext, err := crypto.Decrypt(key, data[crypto.NonceLength:], data[:crypto.NonceLength])
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// ReadKeyFile reads a 32-byte encryption key from a file.
func ReadKeyFile(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	if len(key) != KeyLength {
		crypto.SecureWipe(key)
		return nil, ErrInvalidKeyFile
	}
	return key, nil
}

// GenerateKeyFile generates a random 32-byte key and writes it to a file.
func GenerateKeyFile(path string) error {
	key, err := crypto.RandomBytes(KeyLength)
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}
	defer crypto.SecureWipe(key)

	if err := os.WriteFile(path, key, 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}
