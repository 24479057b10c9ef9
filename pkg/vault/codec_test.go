package vault

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/secretkeep/secretkeep/pkg/cipher"
	"github.com/secretkeep/secretkeep/pkg/secret"
)

var testSalt = []byte("0123456789abcdef")

func sampleSecrets() []secret.Secret {
	return []secret.Secret{
		{Description: "Bank", Username: "alice", Password: "hunter2",
			AccessLog: []secret.LogEntry{{Type: secret.Created, Time: 1700000000000}}},
		{Description: "Email", Email: "alice@example.com", Note: "recovery codes in drawer"},
	}
}

// encodeLegacy writes secrets the way older releases did.
func encodeLegacy(t *testing.T, v cipher.Version, secrets []secret.Secret, password string, salt []byte, rounds int) []byte {
	t.Helper()
	info, err := cipher.Derive(v, []byte(password), salt, rounds)
	if err != nil {
		t.Fatalf("Derive(%v) failed: %v", v, err)
	}
	defer info.Wipe()

	block := encodeRecords(secrets, false)
	switch v {
	case cipher.V1:
		out, err := info.Seal(block)
		if err != nil {
			t.Fatal(err)
		}
		return out
	case cipher.V2:
		sealed, err := info.Seal(block)
		if err != nil {
			t.Fatal(err)
		}
		out := append([]byte(nil), salt...)
		out = binary.BigEndian.AppendUint32(out, uint32(rounds))
		return append(out, sealed...)
	case cipher.V3:
		sum := sha256.Sum256(block)
		sealed, err := info.Seal(append(block, sum[:]...))
		if err != nil {
			t.Fatal(err)
		}
		return append(appendHeader(nil, info), sealed...)
	}
	t.Fatalf("no legacy encoder for %v", v)
	return nil
}

func encodeCurrent(t *testing.T, secrets []secret.Secret, password string) []byte {
	t.Helper()
	info, err := cipher.Derive(cipher.Current, []byte(password), testSalt, cipher.MinRounds)
	if err != nil {
		t.Fatal(err)
	}
	defer info.Wipe()
	data, err := Encode(secrets, info)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return data
}

func sameDescriptions(t *testing.T, got []secret.Secret, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d secrets, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Description != want[i] {
			t.Errorf("secret %d = %q, want %q", i, got[i].Description, want[i])
		}
	}
}

func TestEncodeRejectsLegacyInfo(t *testing.T) {
	info, err := cipher.Derive(cipher.V3, []byte("pw"), testSalt, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer info.Wipe()
	if _, err := Encode(sampleSecrets(), info); !errors.Is(err, ErrNotCurrentVersion) {
		t.Errorf("Encode with V3 info = %v, want ErrNotCurrentVersion", err)
	}
}

func TestCurrentRoundTripKeepsTombstones(t *testing.T) {
	in := append(sampleSecrets(), secret.Secret{Description: "Old", Deleted: true})
	data := encodeCurrent(t, in, "pw")

	h, ok := Peek(data)
	if !ok || h.Version != cipher.Current || h.Rounds != cipher.MinRounds || !bytes.Equal(h.Salt, testSalt) {
		t.Fatalf("unexpected header %+v, %v", h, ok)
	}

	info, err := cipher.Derive(cipher.Current, []byte("pw"), testSalt, cipher.MinRounds)
	if err != nil {
		t.Fatal(err)
	}
	defer info.Wipe()
	out, ok := Decode(data, info)
	if !ok {
		t.Fatal("Decode failed")
	}
	sameDescriptions(t, out, "Bank", "Email", "Old")
	if !out[2].Deleted || out[0].Deleted {
		t.Error("deleted flag not preserved")
	}
	if out[0].Password != "hunter2" || len(out[0].AccessLog) != 1 {
		t.Errorf("record content lost: %+v", out[0])
	}
}

func TestOpenCascade(t *testing.T) {
	tests := []struct {
		name    string
		version cipher.Version
		data    func(t *testing.T) []byte
	}{
		{"current", cipher.Current, func(t *testing.T) []byte { return encodeCurrent(t, sampleSecrets(), "pw") }},
		{"v3", cipher.V3, func(t *testing.T) []byte { return encodeLegacy(t, cipher.V3, sampleSecrets(), "pw", testSalt, 2) }},
		{"v2", cipher.V2, func(t *testing.T) []byte { return encodeLegacy(t, cipher.V2, sampleSecrets(), "pw", testSalt, 2) }},
		{"v1", cipher.V1, func(t *testing.T) []byte { return encodeLegacy(t, cipher.V1, sampleSecrets(), "pw", nil, 0) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.data(t)

			res, err := Open(data, []byte("pw"), nil)
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			defer res.Info.Wipe()
			if res.Version != tt.version {
				t.Errorf("Version = %v, want %v", res.Version, tt.version)
			}
			if res.Migrated != (tt.version != cipher.Current) {
				t.Errorf("Migrated = %v for %v", res.Migrated, tt.version)
			}
			if res.Info.Version != cipher.Current {
				t.Errorf("result Info is %v, want current", res.Info.Version)
			}
			sameDescriptions(t, res.Secrets, "Bank", "Email")

			if _, err := Open(data, []byte("wrong"), nil); !errors.Is(err, ErrInvalidPasswordOrCorrupt) {
				t.Errorf("Open with wrong password = %v, want ErrInvalidPasswordOrCorrupt", err)
			}
		})
	}
}

func TestOpenV2Scenario(t *testing.T) {
	salt := []byte("SSSSSSSSSSSSSSSS")
	const rounds = 7
	data := encodeLegacy(t, cipher.V2, []secret.Secret{{Description: "router", Password: "admin"}}, "p@ss", salt, rounds)

	res, err := Open(data, []byte("p@ss"), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer res.Info.Wipe()
	if res.Version != cipher.V2 || !res.Migrated {
		t.Errorf("got version %v migrated %v, want V2 migrated", res.Version, res.Migrated)
	}
	if res.Info.Rounds != rounds || bytes.Equal(res.Info.Salt, salt) {
		t.Errorf("migration must keep rounds and use a fresh salt: %+v", res.Info)
	}
	sameDescriptions(t, res.Secrets, "router")

	if _, err := Open(data, []byte("p@sS"), nil); !errors.Is(err, ErrInvalidPasswordOrCorrupt) {
		t.Errorf("wrong password = %v, want ErrInvalidPasswordOrCorrupt", err)
	}
}

func TestOpenLegacyBlankFirstDescription(t *testing.T) {
	secrets := []secret.Secret{
		{Description: "", Username: "nameless", Password: "pw1"},
		{Description: "Bank", Username: "alice"},
	}
	tests := []struct {
		name    string
		version cipher.Version
		salt    []byte
		rounds  int
	}{
		{"v2", cipher.V2, testSalt, 2},
		{"v1", cipher.V1, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := encodeLegacy(t, tt.version, secrets, "pw", tt.salt, tt.rounds)

			res, err := Open(data, []byte("pw"), nil)
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			defer res.Info.Wipe()
			if res.Version != tt.version {
				t.Errorf("Version = %v, want %v", res.Version, tt.version)
			}
			sameDescriptions(t, res.Secrets, "", "Bank")
			if res.Secrets[0].Username != "nameless" {
				t.Errorf("first record = %+v", res.Secrets[0])
			}
		})
	}
}

func TestOpenMigratedReportsCurrent(t *testing.T) {
	data := encodeLegacy(t, cipher.V3, sampleSecrets(), "pw", testSalt, 2)
	res, err := Open(data, []byte("pw"), nil)
	if err != nil {
		t.Fatal(err)
	}
	migrated, err := Encode(res.Secrets, res.Info)
	res.Info.Wipe()
	if err != nil {
		t.Fatal(err)
	}

	again, err := Open(migrated, []byte("pw"), nil)
	if err != nil {
		t.Fatalf("re-open failed: %v", err)
	}
	defer again.Info.Wipe()
	if again.Version != cipher.Current || again.Migrated {
		t.Errorf("got %v migrated=%v, want current and not migrated", again.Version, again.Migrated)
	}
	sameDescriptions(t, again.Secrets, "Bank", "Email")
}

func TestOpenCorruption(t *testing.T) {
	data := encodeCurrent(t, sampleSecrets(), "pw")

	for _, offset := range []int{headerSize + 6, len(data) / 2, len(data) - 1} {
		tampered := bytes.Clone(data)
		tampered[offset] ^= 0x80
		if _, err := Open(tampered, []byte("pw"), nil); !errors.Is(err, ErrInvalidPasswordOrCorrupt) {
			t.Errorf("offset %d: error = %v, want ErrInvalidPasswordOrCorrupt", offset, err)
		}
	}

	if _, err := Open(data[:headerSize+2], []byte("pw"), nil); !errors.Is(err, ErrInvalidPasswordOrCorrupt) {
		t.Errorf("truncated: error = %v", err)
	}
	if _, err := Open(nil, []byte("pw"), nil); !errors.Is(err, ErrInvalidPasswordOrCorrupt) {
		t.Errorf("empty: error = %v", err)
	}
}

func TestOpenInvalidRounds(t *testing.T) {
	data := encodeCurrent(t, sampleSecrets(), "pw")
	bad := bytes.Clone(data)
	binary.BigEndian.PutUint32(bad[len(Magic)+1+len(testSalt):], 0)

	if _, err := Open(bad, []byte("pw"), nil); !errors.Is(err, cipher.ErrInvalidDerivationInput) {
		t.Errorf("Open with zero rounds = %v, want ErrInvalidDerivationInput", err)
	}
}

func TestDecodeRecordsStrictness(t *testing.T) {
	block := encodeRecords(sampleSecrets(), false)
	padded := append(bytes.Clone(block), 0, 0, 0)

	if _, err := decodeRecords(padded, false, true); err == nil {
		t.Error("strict decode must reject trailing bytes")
	}
	if out, err := decodeRecords(padded, false, false); err != nil || len(out) != 2 {
		t.Errorf("lenient decode = %v, %v", out, err)
	}

	blank := encodeRecords([]secret.Secret{{Username: "x"}}, false)
	for _, strict := range []bool{false, true} {
		if out, err := decodeRecords(blank, false, strict); err != nil || len(out) != 1 {
			t.Errorf("decode of blank description (strict=%v) = %v, %v", strict, out, err)
		}
	}

	badLog := encodeRecords([]secret.Secret{{Description: "a", AccessLog: []secret.LogEntry{{Type: 99}}}}, false)
	if _, err := decodeRecords(badLog, false, true); err == nil {
		t.Error("unknown log type must be rejected")
	}
}
