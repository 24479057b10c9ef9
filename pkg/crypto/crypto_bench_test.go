package crypto_test

import (
	"crypto/aes"
	"crypto/rand"
	"fmt"
	"testing"

	"github.com/secretkeep/secretkeep/pkg/crypto"
)

func randomBytes(b *testing.B, n int) []byte {
	b.Helper()
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		b.Fatal(err)
	}
	return buf
}

// BenchmarkDeriveLegacy covers the PBKDF2 derivations older vaults need on
// every unlock attempt of the cascade.
func BenchmarkDeriveLegacy(b *testing.B) {
	password := []byte("testpassword123!")
	salt := randomBytes(b, crypto.SaltLength)

	b.Run("pbkdf2-sha1", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			crypto.DerivePBKDF2SHA1(password, salt, 20, 16)
		}
	})
	b.Run("pbkdf2-sha256", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			crypto.DerivePBKDF2SHA256(password, salt, 3000, crypto.KeyLength)
		}
	})
}

func BenchmarkExpandKeys(b *testing.B) {
	master := randomBytes(b, crypto.KeyLength)
	salt := randomBytes(b, crypto.SaltLength)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		enc, mac, err := crypto.ExpandKeys(master, salt, "enc", "mac")
		if err != nil {
			b.Fatal(err)
		}
		crypto.SecureWipe(enc)
		crypto.SecureWipe(mac)
	}
}

var payloadSizes = []int{1 << 10, 10 << 10, 100 << 10, 1 << 20}

func BenchmarkGCM(b *testing.B) {
	key := randomBytes(b, crypto.KeyLength)
	for _, size := range payloadSizes {
		data := randomBytes(b, size)
		ciphertext, nonce, err := crypto.Encrypt(key, data)
		if err != nil {
			b.Fatal(err)
		}

		b.Run(fmt.Sprintf("seal-%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(size))
			for i := 0; i < b.N; i++ {
				if _, _, err := crypto.Encrypt(key, data); err != nil {
					b.Fatal(err)
				}
			}
		})
		b.Run(fmt.Sprintf("open-%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(size))
			for i := 0; i < b.N; i++ {
				if _, err := crypto.Decrypt(key, ciphertext, nonce); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkCBC(b *testing.B) {
	key := randomBytes(b, crypto.KeyLength)
	iv := randomBytes(b, aes.BlockSize)
	for _, size := range payloadSizes {
		data := randomBytes(b, size)
		ciphertext, err := crypto.EncryptCBC(key, iv, data)
		if err != nil {
			b.Fatal(err)
		}

		b.Run(fmt.Sprintf("decrypt-%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(size))
			for i := 0; i < b.N; i++ {
				if _, err := crypto.DecryptCBC(key, iv, ciphertext); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkSecureWipe(b *testing.B) {
	data := make([]byte, 1024)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		crypto.SecureWipe(data)
	}
}
