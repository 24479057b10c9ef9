// Package cipher describes every vault format version secretkeep can read,
// derives the key material for each of them, and holds the cipher state of
// the currently unlocked vault.
package cipher

import (
	"errors"
	"fmt"
)

// Version tags a vault format. The numeric values are written into vault
// headers and must never be reused or renumbered; new versions are appended.
type Version uint8

const (
	V1      Version = 1
	V2      Version = 2
	V3      Version = 3
	Current Version = 4
)

func (v Version) String() string {
	switch v {
	case V1:
		return "v1"
	case V2:
		return "v2"
	case V3:
		return "v3"
	case Current:
		return "v4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(v))
	}
}

// KDF identifies a key-derivation scheme.
type KDF int

const (
	KDFPBKDF2SHA1 KDF = iota + 1
	KDFPBKDF2SHA256
	KDFArgon2id
)

func (k KDF) String() string {
	switch k {
	case KDFPBKDF2SHA1:
		return "pbkdf2-sha1"
	case KDFPBKDF2SHA256:
		return "pbkdf2-sha256"
	case KDFArgon2id:
		return "argon2id"
	default:
		return "unknown"
	}
}

// Mode identifies the block cipher mode.
type Mode int

const (
	ModeCBC Mode = iota + 1
	ModeGCM
)

func (m Mode) String() string {
	switch m {
	case ModeCBC:
		return "aes-cbc"
	case ModeGCM:
		return "aes-gcm"
	default:
		return "unknown"
	}
}

// Spec is the static description of one format version.
type Spec struct {
	Version Version
	KDF     KDF
	// RoundScale multiplies the stored round count to get the KDF iteration
	// count. Zero means the version has no round parameter.
	RoundScale int
	// FixedIterations is used by versions without a round parameter.
	FixedIterations int
	Mode            Mode
	KeySize         int
	// Header reports whether the file starts with the magic and version tag.
	Header bool
	// Salted reports whether the file carries its own salt and round count.
	Salted bool
	// Integrity reports whether the format can detect a wrong key or
	// corruption deterministically.
	Integrity bool
}

// V2RoundScale is the PBKDF2 iteration multiplier of version 2 vaults.
const V2RoundScale = 1000

// ErrUnknownVersion is returned by Lookup for tags outside the registry.
var ErrUnknownVersion = errors.New("cipher: unknown vault version")

var registry = map[Version]Spec{
	V1: {
		Version:         V1,
		KDF:             KDFPBKDF2SHA1,
		FixedIterations: 20,
		Mode:            ModeCBC,
		KeySize:         16,
	},
	V2: {
		Version:    V2,
		KDF:        KDFPBKDF2SHA256,
		RoundScale: V2RoundScale,
		Mode:       ModeCBC,
		KeySize:    32,
		Salted:     true,
	},
	V3: {
		Version:    V3,
		KDF:        KDFArgon2id,
		RoundScale: 1,
		Mode:       ModeCBC,
		KeySize:    32,
		Header:     true,
		Salted:     true,
		Integrity:  true,
	},
	Current: {
		Version:    Current,
		KDF:        KDFArgon2id,
		RoundScale: 1,
		Mode:       ModeGCM,
		KeySize:    32,
		Header:     true,
		Salted:     true,
		Integrity:  true,
	},
}

// Lookup returns the Spec for v.
func Lookup(v Version) (Spec, error) {
	spec, ok := registry[v]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %d", ErrUnknownVersion, uint8(v))
	}
	return spec, nil
}

// Cascade returns the order in which unlock attempts versions: newest first.
func Cascade() []Version {
	return []Version{Current, V3, V2, V1}
}
