// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package auth

import (
	"context"
	"time"
)

// Recipient identifies the addressee of an account mail.
type Recipient struct {
	Name  string
	Email string
}

// Mailer delivers account mail out of band.
type Mailer interface {
	// SendWelcome greets a newly registered account.
	SendWelcome(ctx context.Context, to Recipient) error

	// SendPasswordReset delivers a raw reset token. Implementations must not log it.
	SendPasswordReset(ctx context.Context, to Recipient, rawToken string, expiresAt time.Time) error
}

// Recorder receives authentication outcome counts.
type Recorder interface {
	LoginAttempt(outcome string)
	AccountLocked()
	PasswordReset(stage string)
	SessionValidation(outcome string)
	DeliveryFailure(kind string)
}

// Login attempt outcomes reported to the Recorder.
const (
	OutcomeSuccess        = "success"
	OutcomeUnknownAccount = "unknown_account"
	OutcomeWrongPassword  = "wrong_password"
	OutcomeLocked         = "locked"
	OutcomeError          = "error"
)

type nopMailer struct{}

func (nopMailer) SendWelcome(context.Context, Recipient) error { return nil }

func (nopMailer) SendPasswordReset(context.Context, Recipient, string, time.Time) error {
	return nil
}

type nopRecorder struct{}

func (nopRecorder) LoginAttempt(string)      {}
func (nopRecorder) AccountLocked()           {}
func (nopRecorder) PasswordReset(string)     {}
func (nopRecorder) SessionValidation(string) {}
func (nopRecorder) DeliveryFailure(string)   {}
