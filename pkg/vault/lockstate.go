package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/secretkeep/secretkeep/pkg/persist"
)

// Unlock attempt limits: 5 attempts -> 30s, 10 attempts -> 5min,
// 20 attempts -> 30min.
const (
	CooldownThreshold1 = 5
	CooldownThreshold2 = 10
	CooldownThreshold3 = 20
	CooldownDuration1  = 30 * time.Second
	CooldownDuration2  = 5 * time.Minute
	CooldownDuration3  = 30 * time.Minute
)

// lockStateSuffix names the lock state blob next to the vault blob.
const lockStateSuffix = ".lockstate"

// LockState tracks failed unlock attempts for cooldown enforcement.
type LockState struct {
	FailedAttempts int       `json:"failed_attempts"`
	LastAttempt    time.Time `json:"last_attempt"`
	CooldownUntil  time.Time `json:"cooldown_until"`
}

func (v *Vault) lockStateName() string {
	return v.name + lockStateSuffix
}

// loadLockState reads the lock state. A missing or unreadable record is an
// empty state.
func (v *Vault) loadLockState(ctx context.Context) (*LockState, error) {
	data, err := v.store.LoadRaw(ctx, v.lockStateName())
	if err != nil {
		if errors.Is(err, persist.ErrNotFound) {
			return &LockState{}, nil
		}
		return nil, fmt.Errorf("vault: failed to read lock state: %w", err)
	}

	var state LockState
	if err := json.Unmarshal(data, &state); err != nil {
		v.logger.Warn("resetting corrupt lock state", zap.Error(err))
		return &LockState{}, nil
	}
	return &state, nil
}

func (v *Vault) saveLockState(ctx context.Context, state *LockState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("vault: failed to marshal lock state: %w", err)
	}
	if err := v.store.SaveRaw(ctx, v.lockStateName(), data); err != nil {
		return fmt.Errorf("vault: failed to write lock state: %w", err)
	}
	return nil
}

func (v *Vault) clearLockState(ctx context.Context) error {
	if err := v.store.Delete(ctx, v.lockStateName()); err != nil {
		return fmt.Errorf("vault: failed to clear lock state: %w", err)
	}
	return nil
}

// checkCooldown returns ErrCooldownActive and the time left while a
// cooldown is running.
func (v *Vault) checkCooldown(ctx context.Context) (time.Duration, error) {
	state, err := v.loadLockState(ctx)
	if err != nil {
		return 0, err
	}
	now := v.now()
	if !state.CooldownUntil.IsZero() && now.Before(state.CooldownUntil) {
		return state.CooldownUntil.Sub(now), ErrCooldownActive
	}
	return 0, nil
}

// recordFailedAttempt counts a failed unlock and returns the cooldown it
// triggered, if any.
func (v *Vault) recordFailedAttempt(ctx context.Context) (time.Duration, error) {
	state, err := v.loadLockState(ctx)
	if err != nil {
		return 0, err
	}

	now := v.now()
	state.FailedAttempts++
	state.LastAttempt = now

	var cooldown time.Duration
	switch {
	case state.FailedAttempts >= CooldownThreshold3:
		cooldown = CooldownDuration3
	case state.FailedAttempts >= CooldownThreshold2:
		cooldown = CooldownDuration2
	case state.FailedAttempts >= CooldownThreshold1:
		cooldown = CooldownDuration1
	}
	if cooldown > 0 {
		state.CooldownUntil = now.Add(cooldown)
	}

	return cooldown, v.saveLockState(ctx, state)
}

// LockState returns the current lock state for display.
func (v *Vault) LockState(ctx context.Context) (*LockState, error) {
	return v.loadLockState(ctx)
}

// RemainingCooldown returns the remaining cooldown, or 0 if none is active.
func (v *Vault) RemainingCooldown(ctx context.Context) time.Duration {
	remaining, err := v.checkCooldown(ctx)
	if errors.Is(err, ErrCooldownActive) {
		return remaining
	}
	return 0
}
