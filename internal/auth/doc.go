// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

// Package auth provides account authentication and credential lifecycle
// management for Tourbook.
//
// # Primitives
//
// The leaf components have no I/O:
//   - PasswordHasher / Argon2idHasher - salted one-way password digests
//   - TokenSigner - HS256 session tokens carrying subject and issue time
//   - ResetTokenIssuer - single-use, 10 minute password reset tokens
//   - IsLocked, OnFailedAttempt, OnSuccessfulLogin - the failed-login lockout policy
//
// # Service
//
// Service drives one account at a time through login, signup, password
// change, password reset and session validation. Every side effect (lockout
// bookkeeping, rehashing, PasswordChangedAt, clearing reset fields) is an
// explicit step; AccountRepository implementations only load and store.
//
// Failures are oops errors carrying one of the Code* constants. Login never
// distinguishes an unknown email from a wrong password.
package auth
