// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MinSigningKeyBytes is the shortest accepted HS256 signing key.
const MinSigningKeyBytes = 32

// Session is the identity carried by a verified session token.
type Session struct {
	SubjectID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenSigner issues and verifies HS256 session tokens. The key is fixed for
// the life of the process; replacing it invalidates every outstanding token.
type TokenSigner struct {
	key []byte
	now func() time.Time
}

// NewTokenSigner creates a TokenSigner. now may be nil to use time.Now.
func NewTokenSigner(key []byte, now func() time.Time) (*TokenSigner, error) {
	if len(key) < MinSigningKeyBytes {
		return nil, oops.Code("TOKEN_KEY_INVALID").
			With("min_bytes", MinSigningKeyBytes).
			With("got_bytes", len(key)).
			Errorf("signing key must be at least %d bytes", MinSigningKeyBytes)
	}
	if now == nil {
		now = time.Now
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &TokenSigner{key: k, now: now}, nil
}

// Issue signs a token for subjectID issued at issuedAt and valid for ttl.
func (s *TokenSigner) Issue(subjectID string, issuedAt time.Time, ttl time.Duration) (string, error) {
	if subjectID == "" {
		return "", oops.Code("TOKEN_ISSUE_FAILED").Errorf("subject cannot be empty")
	}
	if ttl <= 0 {
		return "", oops.Code("TOKEN_ISSUE_FAILED").With("ttl", ttl).Errorf("ttl must be positive")
	}
	claims := jwt.RegisteredClaims{
		ID:        ulid.Make().String(),
		Subject:   subjectID,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", oops.Code("TOKEN_ISSUE_FAILED").With("subject", subjectID).Wrap(err)
	}
	return signed, nil
}

// Verify checks the token signature and expiry and returns its session.
func (s *TokenSigner) Verify(token string) (Session, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return Session{}, classifyTokenError(err)
	}
	if claims.Subject == "" || claims.IssuedAt == nil {
		return Session{}, oops.Code(CodeTokenMalformed).Errorf("token is missing subject or issue time")
	}
	return Session{
		SubjectID: claims.Subject,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return oops.Code(CodeTokenMalformed).Wrapf(err, "token is malformed")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return oops.Code(CodeTokenSignature).Wrapf(err, "token signature is invalid")
	case errors.Is(err, jwt.ErrTokenExpired):
		return oops.Code(CodeTokenExpired).Wrapf(err, "token has expired")
	default:
		return oops.Code(CodeTokenMalformed).Wrapf(err, "token rejected")
	}
}
