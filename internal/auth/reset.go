// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/samber/oops"
)

// Reset token configuration.
const (
	ResetTokenBytes  = 32               // 32 bytes = 64 hex chars
	ResetTokenWindow = 10 * time.Minute // validity after issue
)

// ResetToken is a freshly issued password reset token.
// Raw goes to the account holder out of band and is never stored; only Hash is persisted.
type ResetToken struct {
	Raw       string
	Hash      string
	ExpiresAt time.Time
}

// ResetTokenIssuer generates password reset tokens.
type ResetTokenIssuer struct {
	now func() time.Time
}

// NewResetTokenIssuer creates a ResetTokenIssuer. now may be nil to use time.Now.
func NewResetTokenIssuer(now func() time.Time) *ResetTokenIssuer {
	if now == nil {
		now = time.Now
	}
	return &ResetTokenIssuer{now: now}
}

// Issue creates a random token, its stored hash, and its expiry.
func (i *ResetTokenIssuer) Issue() (ResetToken, error) {
	tokenBytes := make([]byte, ResetTokenBytes)
	if _, err := rand.Read(tokenBytes); err != nil {
		return ResetToken{}, oops.Code("RESET_TOKEN_GENERATE_FAILED").
			With("requested_bytes", ResetTokenBytes).
			Wrap(err)
	}
	raw := hex.EncodeToString(tokenBytes)
	return ResetToken{
		Raw:       raw,
		Hash:      HashResetToken(raw),
		ExpiresAt: i.now().Add(ResetTokenWindow),
	}, nil
}

// HashResetToken computes the hex SHA-256 of a raw reset token.
// Reset tokens carry 256 bits of entropy, so a fast hash is sufficient.
func HashResetToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// VerifyResetToken checks if the raw token matches the stored hash in constant time.
func VerifyResetToken(raw, hash string) bool {
	if raw == "" || hash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashResetToken(raw)), []byte(hash)) == 1
}
