// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package auth

import (
	"time"
)

// Lockout configuration.
const (
	// LockoutWindow is how long an account stays locked after reaching its
	// failed-attempt limit.
	LockoutWindow = 30 * time.Minute

	// DefaultMaxLoginAttempts is the failed-attempt limit for new accounts.
	DefaultMaxLoginAttempts = 5
)

// LockoutState is the failed-login bookkeeping of one account.
type LockoutState struct {
	FailedLoginCount int
	MaxLoginAttempts int
	LockedUntil      *time.Time
}

// IsLocked returns true while LockedUntil lies in the future.
func IsLocked(state LockoutState, now time.Time) bool {
	return state.LockedUntil != nil && state.LockedUntil.After(now)
}

// OnFailedAttempt counts a failed login. Reaching the limit locks the account
// for LockoutWindow; below the limit LockedUntil is left as it was.
func OnFailedAttempt(state LockoutState, now time.Time) LockoutState {
	next := state
	next.FailedLoginCount++
	if next.MaxLoginAttempts <= 0 {
		next.MaxLoginAttempts = DefaultMaxLoginAttempts
	}
	if next.FailedLoginCount >= next.MaxLoginAttempts {
		until := now.Add(LockoutWindow)
		next.LockedUntil = &until
	}
	return next
}

// OnSuccessfulLogin clears the failure counter and any lock.
func OnSuccessfulLogin(state LockoutState) LockoutState {
	next := state
	next.FailedLoginCount = 0
	next.LockedUntil = nil
	return next
}
