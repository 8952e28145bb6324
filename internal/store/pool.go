// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

// Package store owns the PostgreSQL connection pool and schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectOptions controls how Connect waits for the database.
type ConnectOptions struct {
	// Attempts is the number of connection attempts before giving up.
	Attempts uint64
	// Backoff is the initial delay between attempts; it doubles each time.
	Backoff time.Duration
	// MaxBackoff caps the delay between attempts.
	MaxBackoff time.Duration
	Logger     *slog.Logger
}

// DefaultConnectOptions suit a database that starts alongside the service.
var DefaultConnectOptions = ConnectOptions{
	Attempts:   6,
	Backoff:    500 * time.Millisecond,
	MaxBackoff: 5 * time.Second,
}

// pinger is the part of a pool Connect needs to confirm it is usable.
type pinger interface {
	Ping(ctx context.Context) error
	Close()
}

// Connect opens a pgx pool for databaseURL and pings it until it answers.
func Connect(ctx context.Context, databaseURL string, opts ConnectOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Wrapf(err, "parse database url")
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("host", cfg.ConnConfig.Host).Wrap(err)
	}
	if err := waitReady(ctx, pool, opts); err != nil {
		return nil, oops.With("host", cfg.ConnConfig.Host).Wrap(err)
	}
	return pool, nil
}

// waitReady pings p with capped exponential backoff. The pool is closed if
// it never answers.
func waitReady(ctx context.Context, p pinger, opts ConnectOptions) error {
	if opts.Attempts == 0 {
		opts.Attempts = DefaultConnectOptions.Attempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultConnectOptions.Backoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultConnectOptions.MaxBackoff
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	backoff := retry.NewExponential(opts.Backoff)
	backoff = retry.WithCappedDuration(opts.MaxBackoff, backoff)
	backoff = retry.WithMaxRetries(opts.Attempts-1, backoff)

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := p.Ping(ctx); err != nil {
			logger.WarnContext(ctx, "database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		p.Close()
		return oops.Code("DB_CONNECT_FAILED").With("attempts", attempt).Wrap(err)
	}
	return nil
}
