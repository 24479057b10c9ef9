package vault

import (
	"encoding/binary"
	"errors"
	"math"
	"unicode/utf8"

	"github.com/secretkeep/secretkeep/pkg/secret"
)

// Record block layout, all integers big-endian:
//
//	uint32 count
//	count x record:
//	    5 x (uint32 length, UTF-8 bytes)   description username password email note
//	    uint32 entries, entries x (uint8 type, int64 epoch millis)
//	    uint8 flags                        current version only; bit 0 = deleted
//
// Versions before the current one have no flags byte and cannot store
// tombstones.

const (
	flagDeleted = 1 << 0

	// minRecordSize is the smallest legacy record: five empty strings and an
	// empty log.
	minRecordSize = 5*4 + 4
	logEntrySize  = 1 + 8
)

var errMalformed = errors.New("vault: malformed record block")

func appendString(b []byte, s string) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(len(s)))
	return append(b, s...)
}

// encodeRecords serializes secrets. withFlags selects the current layout.
func encodeRecords(secrets []secret.Secret, withFlags bool) []byte {
	b := binary.BigEndian.AppendUint32(nil, uint32(len(secrets)))
	for _, s := range secrets {
		b = appendString(b, s.Description)
		b = appendString(b, s.Username)
		b = appendString(b, s.Password)
		b = appendString(b, s.Email)
		b = appendString(b, s.Note)
		b = binary.BigEndian.AppendUint32(b, uint32(len(s.AccessLog)))
		for _, e := range s.AccessLog {
			b = append(b, byte(e.Type))
			b = binary.BigEndian.AppendUint64(b, uint64(e.Time))
		}
		if withFlags {
			var flags byte
			if s.Deleted {
				flags |= flagDeleted
			}
			b = append(b, flags)
		}
	}
	return b
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) readUint32() (uint32, bool) {
	if len(r.buf)-r.off < 4 {
		return 0, false
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, true
}

func (r *reader) readByte() (byte, bool) {
	if r.off >= len(r.buf) {
		return 0, false
	}
	v := r.buf[r.off]
	r.off++
	return v, true
}

func (r *reader) readInt64() (int64, bool) {
	if len(r.buf)-r.off < 8 {
		return 0, false
	}
	v := binary.BigEndian.Uint64(r.buf[r.off:])
	r.off += 8
	if v > math.MaxInt64 {
		return 0, false
	}
	return int64(v), true
}

func (r *reader) readString() (string, bool) {
	n, ok := r.readUint32()
	if !ok || uint64(n) > uint64(len(r.buf)-r.off) {
		return "", false
	}
	b := r.buf[r.off : r.off+int(n)]
	if !utf8.Valid(b) {
		return "", false
	}
	r.off += int(n)
	return string(b), true
}

func (r *reader) record(withFlags bool) (secret.Secret, bool) {
	var s secret.Secret
	fields := []*string{&s.Description, &s.Username, &s.Password, &s.Email, &s.Note}
	for _, f := range fields {
		v, ok := r.readString()
		if !ok {
			return s, false
		}
		*f = v
	}

	n, ok := r.readUint32()
	if !ok || uint64(n)*logEntrySize > uint64(len(r.buf)-r.off) {
		return s, false
	}
	if n > 0 {
		s.AccessLog = make([]secret.LogEntry, 0, n)
	}
	for i := uint32(0); i < n; i++ {
		t, _ := r.readByte()
		at, ok := r.readInt64()
		if !ok || !secret.LogType(t).Valid() {
			return s, false
		}
		s.AccessLog = append(s.AccessLog, secret.LogEntry{Type: secret.LogType(t), Time: at})
	}

	if withFlags {
		flags, ok := r.readByte()
		if !ok || flags&^flagDeleted != 0 {
			return s, false
		}
		s.Deleted = flags&flagDeleted != 0
	}
	return s, true
}

// decodeRecords parses a record block. With strict set the block must be
// consumed exactly. Without it trailing bytes are tolerated: legacy formats
// have no integrity check, and records that parse as well-formed UTF-8 are
// the only sign the key was right.
func decodeRecords(block []byte, withFlags, strict bool) ([]secret.Secret, error) {
	r := &reader{buf: block}
	count, ok := r.readUint32()
	if !ok || uint64(count)*minRecordSize > uint64(len(block)) {
		return nil, errMalformed
	}

	secrets := make([]secret.Secret, 0, count)
	for i := uint32(0); i < count; i++ {
		s, ok := r.record(withFlags)
		if !ok {
			return nil, errMalformed
		}
		secrets = append(secrets, s)
	}
	if strict && r.off != len(block) {
		return nil, errMalformed
	}
	return secrets, nil
}
