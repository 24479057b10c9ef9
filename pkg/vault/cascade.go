package vault

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/secretkeep/secretkeep/pkg/cipher"
	"github.com/secretkeep/secretkeep/pkg/secret"
)

type state int

const (
	stateTryCurrent state = iota
	stateTryV3
	stateTryV2
	stateTryV1
	stateUnlocked
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateTryCurrent:
		return "TryCurrent"
	case stateTryV3:
		return "TryV3"
	case stateTryV2:
		return "TryV2"
	case stateTryV1:
		return "TryV1"
	case stateUnlocked:
		return "Unlocked"
	default:
		return "Failed"
	}
}

// next is the state entered when the attempt at s fails.
func (s state) next() state {
	if s >= stateTryV1 {
		return stateFailed
	}
	return s + 1
}

func (s state) version() cipher.Version {
	switch s {
	case stateTryCurrent:
		return cipher.Current
	case stateTryV3:
		return cipher.V3
	case stateTryV2:
		return cipher.V2
	default:
		return cipher.V1
	}
}

// Result is the outcome of a successful Open.
type Result struct {
	Secrets []secret.Secret
	// Version is the format the file was written in.
	Version cipher.Version
	// Info is a current-version cipher state for the same password. When
	// Migrated is set it has a fresh salt and the caller must re-encode and
	// persist the vault with it.
	Info     *cipher.Info
	Migrated bool
}

// Open decodes vault bytes with password, trying the newest format first and
// falling back through older ones. Every failure ends in
// ErrInvalidPasswordOrCorrupt, except a file whose header is recognised but
// carries impossible salt or round parameters, which is reported at once
// as cipher.ErrInvalidDerivationInput.
func Open(data, password []byte, logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	for st := stateTryCurrent; st != stateFailed; {
		v := st.version()
		info, err := attemptParams(data, password, v)
		if err != nil {
			return nil, err
		}
		if info == nil {
			logger.Debug("vault format not applicable", zap.Stringer("state", st))
			st = st.next()
			continue
		}

		secrets, ok := Decode(data, info)
		if !ok {
			info.Wipe()
			logger.Debug("vault format did not decode", zap.Stringer("state", st))
			st = st.next()
			continue
		}

		logger.Debug("vault unlocked", zap.Stringer("state", stateUnlocked), zap.Stringer("version", v))
		if v == cipher.Current {
			return &Result{Secrets: secrets, Version: v, Info: info}, nil
		}

		// Version 1 has no round count of its own.
		rounds := info.Rounds
		info.Wipe()
		if rounds < cipher.MinRounds || rounds > cipher.MaxRounds {
			rounds = cipher.DefaultRounds
		}
		current, err := cipher.NewCurrent(password, rounds)
		if err != nil {
			return nil, fmt.Errorf("vault: failed to derive migration key: %w", err)
		}
		logger.Info("vault will be migrated to the current format",
			zap.Stringer("from", v), zap.Stringer("to", cipher.Current))
		return &Result{Secrets: secrets, Version: v, Info: current, Migrated: true}, nil
	}

	logger.Debug("vault unlock exhausted all formats", zap.Stringer("state", stateFailed))
	return nil, ErrInvalidPasswordOrCorrupt
}

// attemptParams derives the cipher state for trying version v on data. A nil
// Info with a nil error means the file cannot be in that format.
func attemptParams(data, password []byte, v cipher.Version) (*cipher.Info, error) {
	switch v {
	case cipher.Current, cipher.V3:
		h, ok := Peek(data)
		if !ok || h.Version != v {
			return nil, nil
		}
		info, err := cipher.Derive(v, password, h.Salt, h.Rounds)
		if err != nil {
			if errors.Is(err, cipher.ErrInvalidDerivationInput) {
				return nil, err
			}
			return nil, nil
		}
		return info, nil
	case cipher.V2:
		salt, rounds, ok := v2Params(data)
		if !ok || cipher.ValidateParams(salt, rounds) != nil {
			return nil, nil
		}
		info, err := cipher.Derive(v, password, salt, rounds)
		if err != nil {
			return nil, nil
		}
		return info, nil
	default:
		info, err := cipher.Derive(cipher.V1, password, nil, 0)
		if err != nil {
			return nil, nil
		}
		return info, nil
	}
}
