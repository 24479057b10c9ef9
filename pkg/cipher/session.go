package cipher

import (
	"errors"
	"sync"
)

// ErrNoSession is returned when no vault is unlocked.
var ErrNoSession = errors.New("cipher: no active session")

// Session holds the cipher state of the unlocked vault. It is created on
// unlock or password change and cleared on lock; the zero value is an empty
// session ready to use.
type Session struct {
	mu   sync.Mutex
	info *Info
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{}
}

// Save installs info as the active cipher state. Any previous state is
// wiped, so callers must not keep using it.
func (s *Session) Save(info *Info) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.info != nil && s.info != info {
		s.info.Wipe()
	}
	s.info = info
}

// Clear wipes and removes the active cipher state.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info.Wipe()
	s.info = nil
}

// Active reports whether a cipher state is installed.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info != nil
}

// Do runs fn with the active cipher state while holding the session lock,
// so a concurrent Clear waits for fn to return. fn must not retain info or
// call back into the session.
func (s *Session) Do(fn func(info *Info) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.info == nil {
		return ErrNoSession
	}
	return fn(s.info)
}
