// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

// Package postgres provides the PostgreSQL implementation of auth.AccountRepository.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/tourbook/tourbook/internal/auth"
)

// DB is the subset of *pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const accountColumns = `id, name, email, photo, role, password_hash,
	failed_login_count, max_login_attempts, locked_until, password_changed_at,
	password_reset_token_hash, password_reset_expires_at, active, created_at, updated_at`

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	db DB
}

var _ auth.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create stores a new account.
func (r *AccountRepository) Create(ctx context.Context, a *auth.Account) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		a.ID.String(),
		a.Name,
		a.Email,
		a.Photo,
		string(a.Role),
		a.PasswordHash,
		a.FailedLoginCount,
		a.MaxLoginAttempts,
		a.LockedUntil,
		a.PasswordChangedAt,
		a.PasswordResetTokenHash,
		a.PasswordResetExpiresAt,
		a.Active,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.With("email", a.Email).Wrap(auth.ErrEmailTaken)
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("id", a.ID.String()).
			Wrap(err)
	}
	return nil
}

// FindActiveByEmail retrieves an active account by email (case-insensitive).
func (r *AccountRepository) FindActiveByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE LOWER(email) = LOWER($1) AND active
	`, email)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With("email", email).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_QUERY_FAILED").
			With("operation", "find account by email").
			Wrap(err)
	}
	return account, nil
}

// FindActiveByID retrieves an active account by ID.
func (r *AccountRepository) FindActiveByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1 AND active
	`, id.String())

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_QUERY_FAILED").
			With("operation", "find account by id").
			With("id", id.String()).
			Wrap(err)
	}
	return account, nil
}

// FindByResetTokenHash retrieves the active account holding a reset token hash.
// Expiry is checked by the caller.
func (r *AccountRepository) FindByResetTokenHash(ctx context.Context, tokenHash string) (*auth.Account, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE password_reset_token_hash = $1 AND active
	`, tokenHash)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_QUERY_FAILED").
			With("operation", "find account by reset token").
			Wrap(err)
	}
	return account, nil
}

// Save persists the mutable fields of an existing account.
func (r *AccountRepository) Save(ctx context.Context, a *auth.Account) error {
	result, err := r.db.Exec(ctx, `
		UPDATE accounts SET
			name = $2,
			email = $3,
			photo = $4,
			role = $5,
			password_hash = $6,
			failed_login_count = $7,
			max_login_attempts = $8,
			locked_until = $9,
			password_changed_at = $10,
			password_reset_token_hash = $11,
			password_reset_expires_at = $12,
			active = $13,
			updated_at = $14
		WHERE id = $1
	`,
		a.ID.String(),
		a.Name,
		a.Email,
		a.Photo,
		string(a.Role),
		a.PasswordHash,
		a.FailedLoginCount,
		a.MaxLoginAttempts,
		a.LockedUntil,
		a.PasswordChangedAt,
		a.PasswordResetTokenHash,
		a.PasswordResetExpiresAt,
		a.Active,
		a.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.With("id", a.ID.String()).Wrap(auth.ErrEmailTaken)
		}
		return oops.Code("ACCOUNT_SAVE_FAILED").
			With("operation", "update account").
			With("id", a.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.With("id", a.ID.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// Delete implements auth.AccountRepository.
func (r *AccountRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("ACCOUNT_DELETE_FAILED").
			With("operation", "delete account").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanAccount scans one row into an Account.
// Callers are responsible for handling pgx.ErrNoRows.
func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		a         auth.Account
		idStr     string
		role      string
		lockedAt  *time.Time
		changedAt *time.Time
		resetHash *string
		resetExp  *time.Time
	)
	err := row.Scan(
		&idStr,
		&a.Name,
		&a.Email,
		&a.Photo,
		&role,
		&a.PasswordHash,
		&a.FailedLoginCount,
		&a.MaxLoginAttempts,
		&lockedAt,
		&changedAt,
		&resetHash,
		&resetExp,
		&a.Active,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers classify ErrNoRows
	}

	a.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_CORRUPT").With("id", idStr).Wrapf(err, "parse account id")
	}
	a.Role = auth.Role(role)
	a.LockedUntil = lockedAt
	a.PasswordChangedAt = changedAt
	a.PasswordResetTokenHash = resetHash
	a.PasswordResetExpiresAt = resetExp
	return &a, nil
}
