package crypto

import (
	"crypto/sha1" //nolint:gosec // required to read version 1 vaults
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// DeriveArgon2 derives a 256-bit key with Argon2id using the given number of
// passes. Memory and parallelism are fixed at Argon2Memory and Argon2Threads.
func DeriveArgon2(password, salt []byte, passes uint32) []byte {
	return argon2.IDKey(password, salt, passes, Argon2Memory, Argon2Threads, KeyLength)
}

// DerivePBKDF2SHA1 derives keyLen bytes with PBKDF2-HMAC-SHA1.
// Only legacy vault formats use it.
func DerivePBKDF2SHA1(password, salt []byte, iterations, keyLen int) []byte {
	return pbkdf2.Key(password, salt, iterations, keyLen, sha1.New)
}

// DerivePBKDF2SHA256 derives keyLen bytes with PBKDF2-HMAC-SHA256.
func DerivePBKDF2SHA256(password, salt []byte, iterations, keyLen int) []byte {
	return pbkdf2.Key(password, salt, iterations, keyLen, sha256.New)
}

// ExpandKeys derives two independent 32-byte keys from a master key using
// HKDF-SHA256 with distinct info labels. The master key is not modified.
func ExpandKeys(master, salt []byte, encInfo, macInfo string) (encKey, macKey []byte, err error) {
	encKey, err = ExpandKey(master, salt, encInfo)
	if err != nil {
		return nil, nil, err
	}
	macKey, err = ExpandKey(master, salt, macInfo)
	if err != nil {
		SecureWipe(encKey)
		return nil, nil, err
	}
	return encKey, macKey, nil
}

// ExpandKey derives a single 32-byte key bound to info.
func ExpandKey(master, salt []byte, info string) ([]byte, error) {
	r := hkdf.New(sha256.New, master, salt, []byte(info))
	key := make([]byte, KeyLength)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("crypto: failed to derive %s key: %w", info, err)
	}
	return key, nil
}
