package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
)

// MACLength is the size of an HMAC-SHA256 tag.
const MACLength = sha256.Size

// ComputeHMAC returns HMAC-SHA256 of data under key.
func ComputeHMAC(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// VerifyHMAC reports whether mac is the HMAC-SHA256 of data under key.
// The comparison runs in constant time.
func VerifyHMAC(key, data, mac []byte) bool {
	return hmac.Equal(ComputeHMAC(key, data), mac)
}
