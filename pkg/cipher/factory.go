package cipher

import (
	"crypto/aes"
	"errors"
	"fmt"

	"github.com/secretkeep/secretkeep/pkg/crypto"
)

const (
	// MinRounds and MaxRounds bound the stored round count of salted versions.
	MinRounds = 1
	MaxRounds = 100

	// DefaultRounds is used for new vaults.
	DefaultRounds = crypto.Argon2Time
)

// HKDF labels that split the current version's master key.
const (
	encryptionLabel = "secretkeep vault encryption"
	integrityLabel  = "secretkeep vault integrity"
)

// v1Salt is the salt every version 1 vault was derived with.
var v1Salt = []byte{0xA4, 0x0B, 0xC8, 0x34, 0xD6, 0x95, 0xF3, 0x13}

var (
	// ErrInvalidDerivationInput means the salt or round parameters cannot
	// have been written by secretkeep; the vault header is corrupt.
	ErrInvalidDerivationInput = errors.New("cipher: invalid salt or rounds")

	// ErrNoIntegrityKey is returned by MAC operations on versions without one.
	ErrNoIntegrityKey = errors.New("cipher: version has no integrity key")
)

// Info is the derived cipher state for one version, password and salt.
// It can encrypt and decrypt data blocks for that version.
type Info struct {
	Version Version
	Salt    []byte
	Rounds  int

	encKey []byte
	macKey []byte
	iv     []byte
}

// Derive builds the cipher state for version v. Version 1 ignores salt and
// rounds. Well-formed input always yields an Info; whether it is the right
// one is only known once a decode with it succeeds.
func Derive(v Version, password, salt []byte, rounds int) (*Info, error) {
	spec, err := Lookup(v)
	if err != nil {
		return nil, err
	}

	if spec.Salted {
		if err := ValidateParams(salt, rounds); err != nil {
			return nil, err
		}
	}

	info := &Info{Version: v}
	if spec.Salted {
		info.Salt = append([]byte(nil), salt...)
		info.Rounds = rounds
	}

	switch v {
	case V1:
		material := crypto.DerivePBKDF2SHA1(password, v1Salt, spec.FixedIterations, spec.KeySize+aes.BlockSize)
		info.encKey, info.iv = material[:spec.KeySize], material[spec.KeySize:]
	case V2:
		material := crypto.DerivePBKDF2SHA256(password, salt, rounds*spec.RoundScale, spec.KeySize+aes.BlockSize)
		info.encKey, info.iv = material[:spec.KeySize], material[spec.KeySize:]
	case V3:
		info.encKey = crypto.DeriveArgon2(password, salt, uint32(rounds*spec.RoundScale))
	case Current:
		master := crypto.DeriveArgon2(password, salt, uint32(rounds*spec.RoundScale))
		defer crypto.SecureWipe(master)
		info.encKey, info.macKey, err = crypto.ExpandKeys(master, salt, encryptionLabel, integrityLabel)
		if err != nil {
			return nil, fmt.Errorf("cipher: %w", err)
		}
	}
	return info, nil
}

// NewCurrent derives a current-version Info with a fresh random salt.
func NewCurrent(password []byte, rounds int) (*Info, error) {
	salt, err := crypto.RandomBytes(crypto.SaltLength)
	if err != nil {
		return nil, err
	}
	return Derive(Current, password, salt, rounds)
}

// ValidateParams checks salt and rounds read from a salted vault.
func ValidateParams(salt []byte, rounds int) error {
	if len(salt) != crypto.SaltLength {
		return fmt.Errorf("%w: salt length %d", ErrInvalidDerivationInput, len(salt))
	}
	if rounds < MinRounds || rounds > MaxRounds {
		return fmt.Errorf("%w: rounds %d", ErrInvalidDerivationInput, rounds)
	}
	return nil
}

// Seal encrypts a data block in the framing of the Info's version:
// nonce||ciphertext for the current version, iv||ciphertext for version 3,
// bare ciphertext under the derived IV for versions 1 and 2.
func (i *Info) Seal(plaintext []byte) ([]byte, error) {
	switch i.Version {
	case Current:
		ciphertext, nonce, err := crypto.Encrypt(i.encKey, plaintext)
		if err != nil {
			return nil, err
		}
		return append(nonce, ciphertext...), nil
	case V3:
		iv, err := crypto.RandomBytes(aes.BlockSize)
		if err != nil {
			return nil, err
		}
		ciphertext, err := crypto.EncryptCBC(i.encKey, iv, plaintext)
		if err != nil {
			return nil, err
		}
		return append(iv, ciphertext...), nil
	default:
		return crypto.EncryptCBC(i.encKey, i.iv, plaintext)
	}
}

// Open reverses Seal.
func (i *Info) Open(data []byte) ([]byte, error) {
	switch i.Version {
	case Current:
		if len(data) < crypto.NonceLength {
			return nil, crypto.ErrCiphertextTooShort
		}
		return crypto.Decrypt(i.encKey, data[crypto.NonceLength:], data[:crypto.NonceLength])
	case V3:
		if len(data) < aes.BlockSize {
			return nil, crypto.ErrCiphertextTooShort
		}
		return crypto.DecryptCBC(i.encKey, data[:aes.BlockSize], data[aes.BlockSize:])
	default:
		return crypto.DecryptCBC(i.encKey, i.iv, data)
	}
}

// MAC returns the integrity tag of data. Only the current version has one.
func (i *Info) MAC(data []byte) ([]byte, error) {
	if i.macKey == nil {
		return nil, ErrNoIntegrityKey
	}
	return crypto.ComputeHMAC(i.macKey, data), nil
}

// VerifyMAC reports whether mac is the integrity tag of data.
func (i *Info) VerifyMAC(data, mac []byte) bool {
	if i.macKey == nil {
		return false
	}
	return crypto.VerifyHMAC(i.macKey, data, mac)
}

// DeriveSubkey derives a purpose-bound key from the Info's integrity key.
// Restore points and the audit log use it so they never share the vault key.
func (i *Info) DeriveSubkey(label string) ([]byte, error) {
	if i.macKey == nil {
		return nil, ErrNoIntegrityKey
	}
	return crypto.ExpandKey(i.macKey, i.Salt, label)
}

// Wipe zeroes the key material. The Info is unusable afterwards.
func (i *Info) Wipe() {
	if i == nil {
		return
	}
	crypto.SecureWipe(i.encKey)
	crypto.SecureWipe(i.macKey)
	crypto.SecureWipe(i.iv)
	i.encKey, i.macKey, i.iv = nil, nil, nil
}
