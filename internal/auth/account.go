// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultPhoto is the avatar assigned to new accounts.
const DefaultPhoto = "default.jpg"

// PasswordChangeSkew is subtracted from the change instant when recording
// PasswordChangedAt. Session issue times have whole-second precision, so the
// session handed out by the same operation must still land strictly after it.
const PasswordChangeSkew = time.Second

// Role is an account's authorization role.
type Role string

// Roles known to the system.
const (
	RoleUser      Role = "user"
	RoleGuide     Role = "guide"
	RoleLeadGuide Role = "lead-guide"
	RoleAdmin     Role = "admin"
)

// ParseRole validates s against the closed set of roles.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleUser, RoleGuide, RoleLeadGuide, RoleAdmin:
		return r, nil
	case "":
		return RoleUser, nil
	default:
		return "", oops.Code(CodeValidationFailed).
			With("role", s).
			Errorf("unknown role %q", s)
	}
}

// RoleSet is a set of roles allowed to perform an action.
type RoleSet map[Role]struct{}

// NewRoleSet builds a RoleSet from roles.
func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Allows reports whether role is a member of the set.
func (s RoleSet) Allows(role Role) bool {
	_, ok := s[role]
	return ok
}

// Account is the persisted credential record for a user.
type Account struct {
	ID                     ulid.ULID
	Name                   string
	Email                  string
	Photo                  string
	Role                   Role
	PasswordHash           string
	FailedLoginCount       int
	MaxLoginAttempts       int
	LockedUntil            *time.Time
	PasswordChangedAt      *time.Time
	PasswordResetTokenHash *string
	PasswordResetExpiresAt *time.Time
	Active                 bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// NewAccount creates an active account with default lockout settings.
// PasswordChangedAt stays unset at creation.
func NewAccount(name, email, passwordHash string, role Role, now time.Time) (*Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationFailed("name", "account must have a name")
	}
	email = NormalizeEmail(email)
	if email == "" {
		return nil, validationFailed("email", "account must have an email")
	}
	if strings.TrimSpace(passwordHash) == "" {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	if role == "" {
		role = RoleUser
	}
	return &Account{
		ID:               ulid.Make(),
		Name:             name,
		Email:            email,
		Photo:            DefaultPhoto,
		Role:             role,
		PasswordHash:     passwordHash,
		MaxLoginAttempts: DefaultMaxLoginAttempts,
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Lockout returns the account's lockout state.
func (a *Account) Lockout() LockoutState {
	return LockoutState{
		FailedLoginCount: a.FailedLoginCount,
		MaxLoginAttempts: a.MaxLoginAttempts,
		LockedUntil:      a.LockedUntil,
	}
}

// ApplyLockout copies a lockout state back onto the account.
func (a *Account) ApplyLockout(state LockoutState, now time.Time) {
	a.FailedLoginCount = state.FailedLoginCount
	a.MaxLoginAttempts = state.MaxLoginAttempts
	a.LockedUntil = state.LockedUntil
	a.UpdatedAt = now
}

// SetPassword replaces the password hash and advances PasswordChangedAt.
// PasswordChangedAt never moves backwards.
func (a *Account) SetPassword(hash string, now time.Time) {
	a.PasswordHash = hash
	changed := now.Add(-PasswordChangeSkew)
	if a.PasswordChangedAt == nil || changed.After(*a.PasswordChangedAt) {
		a.PasswordChangedAt = &changed
	}
	a.UpdatedAt = now
}

// SetResetToken records a pending password reset.
func (a *Account) SetResetToken(hash string, expiresAt time.Time) {
	a.PasswordResetTokenHash = &hash
	a.PasswordResetExpiresAt = &expiresAt
}

// ClearResetToken drops any pending password reset.
func (a *Account) ClearResetToken() {
	a.PasswordResetTokenHash = nil
	a.PasswordResetExpiresAt = nil
}

// ResetTokenValidAt reports whether a pending reset exists and is unexpired at now.
func (a *Account) ResetTokenValidAt(now time.Time) bool {
	return a.PasswordResetTokenHash != nil &&
		a.PasswordResetExpiresAt != nil &&
		a.PasswordResetExpiresAt.After(now)
}

// ChangedPasswordAfter reports whether the password changed at or after issuedAt,
// which makes a session issued at that instant stale.
func (a *Account) ChangedPasswordAfter(issuedAt time.Time) bool {
	return a.PasswordChangedAt != nil && !issuedAt.After(*a.PasswordChangedAt)
}

// View returns the sanitized projection of the account.
func (a *Account) View() AccountView {
	return AccountView{
		ID:    a.ID.String(),
		Name:  a.Name,
		Email: a.Email,
		Photo: a.Photo,
		Role:  a.Role,
	}
}

// AccountView is the public projection of an account. It never carries
// password or reset material.
type AccountView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Photo string `json:"photo"`
	Role  Role   `json:"role"`
}

// AccountRepository manages account persistence. Every lookup excludes
// inactive accounts and reports a missing row as ErrNotFound.
type AccountRepository interface {
	// Create stores a new account. Returns ErrEmailTaken on a duplicate email.
	Create(ctx context.Context, account *Account) error

	// FindActiveByEmail retrieves an active account by email (case-insensitive).
	FindActiveByEmail(ctx context.Context, email string) (*Account, error)

	// FindActiveByID retrieves an active account by ID.
	FindActiveByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// FindByResetTokenHash retrieves the active account holding the reset token hash.
	FindByResetTokenHash(ctx context.Context, tokenHash string) (*Account, error)

	// Save persists all mutable fields of an existing account. Returns
	// ErrEmailTaken when the new email belongs to another account.
	Save(ctx context.Context, account *Account) error

	// Delete permanently removes an account, active or not.
	Delete(ctx context.Context, id ulid.ULID) error
}
