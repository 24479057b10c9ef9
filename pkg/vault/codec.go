package vault

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/secretkeep/secretkeep/pkg/cipher"
	"github.com/secretkeep/secretkeep/pkg/crypto"
	"github.com/secretkeep/secretkeep/pkg/secret"
)

// Magic starts every vault file that carries a header (version 3 and later).
var Magic = [8]byte{'S', 'K', 'V', 'A', 'U', 'L', 'T', 0}

const (
	// headerSize is magic, version tag, salt and rounds.
	headerSize = len(Magic) + 1 + crypto.SaltLength + 4

	// v2PrefixSize is the salt and rounds that open a version 2 file.
	v2PrefixSize = crypto.SaltLength + 4
)

// Header is the self-describing prefix of a version 3 or current file.
type Header struct {
	Version cipher.Version
	Salt    []byte
	Rounds  int
}

// Peek reads the header of data if it starts with Magic. It does not check
// that salt and rounds are acceptable.
func Peek(data []byte) (Header, bool) {
	if len(data) < headerSize || !bytes.Equal(data[:len(Magic)], Magic[:]) {
		return Header{}, false
	}
	v := cipher.Version(data[len(Magic)])
	spec, err := cipher.Lookup(v)
	if err != nil || !spec.Header {
		return Header{}, false
	}
	off := len(Magic) + 1
	return Header{
		Version: v,
		Salt:    append([]byte(nil), data[off:off+crypto.SaltLength]...),
		Rounds:  int(binary.BigEndian.Uint32(data[off+crypto.SaltLength:])),
	}, true
}

func appendHeader(b []byte, info *cipher.Info) []byte {
	b = append(b, Magic[:]...)
	b = append(b, byte(info.Version))
	b = append(b, info.Salt...)
	return binary.BigEndian.AppendUint32(b, uint32(info.Rounds))
}

// Encode writes secrets, tombstones included, in the current format:
//
//	header | uint32 length | nonce+ciphertext | HMAC-SHA256 of all preceding bytes
//
// info must be a current-version Info.
func Encode(secrets []secret.Secret, info *cipher.Info) ([]byte, error) {
	if info == nil || info.Version != cipher.Current {
		return nil, ErrNotCurrentVersion
	}

	block := encodeRecords(secrets, true)
	defer crypto.SecureWipe(block)

	sealed, err := info.Seal(block)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to encrypt: %w", err)
	}

	out := appendHeader(make([]byte, 0, headerSize+4+len(sealed)+crypto.MACLength), info)
	out = binary.BigEndian.AppendUint32(out, uint32(len(sealed)))
	out = append(out, sealed...)

	mac, err := info.MAC(out)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to sign: %w", err)
	}
	return append(out, mac...), nil
}

// Decode tries to read data as a vault written in info's version with
// info's key. It reports false for any mismatch: wrong version, wrong key,
// or corruption. It never returns partial results.
func Decode(data []byte, info *cipher.Info) ([]secret.Secret, bool) {
	if info == nil {
		return nil, false
	}

	var (
		secrets []secret.Secret
		err     error
	)
	switch info.Version {
	case cipher.Current:
		secrets, err = decodeCurrent(data, info)
	case cipher.V3:
		secrets, err = decodeV3(data, info)
	case cipher.V2:
		if len(data) <= v2PrefixSize {
			return nil, false
		}
		secrets, err = decodeUnchecked(data[v2PrefixSize:], info)
	case cipher.V1:
		secrets, err = decodeUnchecked(data, info)
	default:
		return nil, false
	}
	if err != nil {
		return nil, false
	}
	return secrets, true
}

func matchesHeader(data []byte, info *cipher.Info) bool {
	h, ok := Peek(data)
	return ok && h.Version == info.Version && h.Rounds == info.Rounds && bytes.Equal(h.Salt, info.Salt)
}

func decodeCurrent(data []byte, info *cipher.Info) ([]secret.Secret, error) {
	if !matchesHeader(data, info) || len(data) < headerSize+4+crypto.MACLength {
		return nil, errMalformed
	}
	body, mac := data[:len(data)-crypto.MACLength], data[len(data)-crypto.MACLength:]
	if !info.VerifyMAC(body, mac) {
		return nil, crypto.ErrDecryptionFailed
	}

	n := binary.BigEndian.Uint32(body[headerSize:])
	sealed := body[headerSize+4:]
	if uint64(n) != uint64(len(sealed)) {
		return nil, errMalformed
	}
	block, err := info.Open(sealed)
	if err != nil {
		return nil, err
	}
	defer crypto.SecureWipe(block)
	return decodeRecords(block, true, true)
}

// decodeV3 reads header | iv+ciphertext, where the plaintext ends in the
// SHA-256 of the record block.
func decodeV3(data []byte, info *cipher.Info) ([]secret.Secret, error) {
	if !matchesHeader(data, info) {
		return nil, errMalformed
	}
	plain, err := info.Open(data[headerSize:])
	if err != nil {
		return nil, err
	}
	defer crypto.SecureWipe(plain)
	if len(plain) < sha256.Size {
		return nil, errMalformed
	}
	block, sum := plain[:len(plain)-sha256.Size], plain[len(plain)-sha256.Size:]
	want := sha256.Sum256(block)
	if !bytes.Equal(sum, want[:]) {
		return nil, errMalformed
	}
	return decodeRecords(block, false, true)
}

func decodeUnchecked(ciphertext []byte, info *cipher.Info) ([]secret.Secret, error) {
	block, err := info.Open(ciphertext)
	if err != nil {
		return nil, err
	}
	defer crypto.SecureWipe(block)
	return decodeRecords(block, false, false)
}

// v2Params reads the salt and rounds prefix of a version 2 file.
func v2Params(data []byte) ([]byte, int, bool) {
	if len(data) <= v2PrefixSize {
		return nil, 0, false
	}
	return data[:crypto.SaltLength], int(binary.BigEndian.Uint32(data[crypto.SaltLength:])), true
}
