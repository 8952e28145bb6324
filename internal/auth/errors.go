// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package auth

import (
	"errors"
	"time"

	"github.com/samber/oops"
)

// ErrNotFound is returned by repositories when a requested account does not
// exist or is inactive.
var ErrNotFound = errors.New("not found")

// ErrEmailTaken is returned by repositories when an email is already registered.
var ErrEmailTaken = errors.New("email already registered")

// Error codes returned by the service. Callers map these to transport status.
const (
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeAccountLocked      = "AUTH_ACCOUNT_LOCKED"
	CodeNotFound           = "AUTH_NOT_FOUND"
	CodeIncorrectPassword  = "AUTH_INCORRECT_PASSWORD"
	CodeValidationFailed   = "AUTH_VALIDATION_FAILED"
	CodeEmailTaken         = "AUTH_EMAIL_TAKEN"
	CodeResetTokenInvalid  = "RESET_TOKEN_INVALID"
	CodeStalePassword      = "SESSION_STALE"
	CodeTokenMalformed     = "TOKEN_MALFORMED"
	CodeTokenSignature     = "TOKEN_INVALID_SIGNATURE"
	CodeTokenExpired       = "TOKEN_EXPIRED"
)

// invalidCredentials is shared by the unknown-account and wrong-password
// paths so both read the same to the caller.
func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf("incorrect email or password")
}

func accountLocked(until time.Time) error {
	return oops.Code(CodeAccountLocked).
		With("locked_until", until).
		Errorf("too many failed login attempts, account is locked until %s", until.UTC().Format(time.Kitchen+" MST"))
}

func validationFailed(field, msg string) error {
	return oops.Code(CodeValidationFailed).
		With("field", field).
		Errorf("%s", msg)
}

// ErrorCode returns the oops code attached to err, or "" when err carries none.
func ErrorCode(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string) //nolint:errcheck // non-string codes are treated as absent
	return code
}

// LockedUntil extracts the unlock instant from an AUTH_ACCOUNT_LOCKED error.
func LockedUntil(err error) (time.Time, bool) {
	oopsErr, ok := oops.AsOops(err)
	if !ok || ErrorCode(err) != CodeAccountLocked {
		return time.Time{}, false
	}
	until, ok := oopsErr.Context()["locked_until"].(time.Time)
	return until, ok
}
