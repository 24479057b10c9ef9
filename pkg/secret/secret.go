// Package secret holds the in-memory model of a vault: the Secret record,
// its access log, and the ordered collection of active and deleted secrets.
package secret

import (
	"time"
)

// LogType is the kind of access recorded in a secret's access log.
// The numeric values are persisted.
type LogType uint8

const (
	Created  LogType = 1
	Changed  LogType = 2
	Viewed   LogType = 3
	Exported LogType = 4
	Synced   LogType = 5
)

func (t LogType) String() string {
	switch t {
	case Created:
		return "created"
	case Changed:
		return "changed"
	case Viewed:
		return "viewed"
	case Exported:
		return "exported"
	case Synced:
		return "synced"
	default:
		return "unknown"
	}
}

// Valid reports whether t is a known log type.
func (t LogType) Valid() bool {
	return t >= Created && t <= Synced
}

// LogEntry is one access log record. Time is in epoch milliseconds.
type LogEntry struct {
	Type LogType `json:"type" yaml:"type"`
	Time int64   `json:"time" yaml:"time"`
}

// At returns the entry time.
func (e LogEntry) At() time.Time {
	return time.UnixMilli(e.Time)
}

// Secret is a single credential record. Description is the sort and merge key.
type Secret struct {
	Description string     `json:"description" yaml:"description"`
	Username    string     `json:"username,omitempty" yaml:"username,omitempty"`
	Password    string     `json:"password,omitempty" yaml:"password,omitempty"`
	Email       string     `json:"email,omitempty" yaml:"email,omitempty"`
	Note        string     `json:"note,omitempty" yaml:"note,omitempty"`
	AccessLog   []LogEntry `json:"access_log,omitempty" yaml:"access_log,omitempty"`
	Deleted     bool       `json:"deleted,omitempty" yaml:"deleted,omitempty"`
}

// New returns a secret with a Created entry at now.
func New(description string, now time.Time) Secret {
	s := Secret{Description: description}
	s.Touch(Created, now)
	return s
}

// Less orders secrets by description using byte-wise comparison.
func Less(a, b Secret) bool {
	return a.Description < b.Description
}

// Compare returns -1, 0 or +1 comparing a and b by description.
func Compare(a, b Secret) int {
	switch {
	case a.Description < b.Description:
		return -1
	case a.Description > b.Description:
		return 1
	default:
		return 0
	}
}

// Touch appends an access log entry.
func (s *Secret) Touch(t LogType, now time.Time) {
	s.AccessLog = append(s.AccessLog, LogEntry{Type: t, Time: now.UnixMilli()})
}

// LastAccessed returns the most recent log entry, if any.
func (s Secret) LastAccessed() (LogEntry, bool) {
	if len(s.AccessLog) == 0 {
		return LogEntry{}, false
	}
	return s.AccessLog[len(s.AccessLog)-1], true
}

// LastModified returns the time of the newest Created or Changed entry, or
// the zero time when the log has neither.
func (s Secret) LastModified() time.Time {
	var latest int64
	for _, e := range s.AccessLog {
		if (e.Type == Created || e.Type == Changed) && e.Time > latest {
			latest = e.Time
		}
	}
	if latest == 0 {
		return time.Time{}
	}
	return time.UnixMilli(latest)
}

// Clone returns a deep copy.
func (s Secret) Clone() Secret {
	c := s
	if s.AccessLog != nil {
		c.AccessLog = append([]LogEntry(nil), s.AccessLog...)
	}
	return c
}

// Same reports whether two secrets carry identical content, ignoring the
// access log and deleted flag.
func (s Secret) Same(o Secret) bool {
	return s.Description == o.Description &&
		s.Username == o.Username &&
		s.Password == o.Password &&
		s.Email == o.Email &&
		s.Note == o.Note
}

func cloneAll(in []Secret) []Secret {
	if in == nil {
		return nil
	}
	out := make([]Secret, len(in))
	for i, s := range in {
		out[i] = s.Clone()
	}
	return out
}
