// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/tourbook/tourbook/internal/auth/postgres"
	"github.com/tourbook/tourbook/internal/observability"
	"github.com/tourbook/tourbook/internal/store"
)

// Database is the connection pool the commands use.
type Database interface {
	postgres.DB
	Ping(ctx context.Context) error
	Close()
}

// AutoMigrator applies pending migrations on startup.
type AutoMigrator interface {
	Up() error
	Close() error
}

// SchemaMigrator is the full migration surface of the migrate command.
type SchemaMigrator interface {
	AutoMigrator
	Down() error
	Version() (uint, bool, error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
}

// ObservabilityServer serves metrics and health probes.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// Deps contains injectable dependencies for the commands.
// Nil fields use their default implementations.
type Deps struct {
	// Connect opens the database. Default: store.Connect with retry.
	Connect func(ctx context.Context, url string, logger *slog.Logger) (Database, error)

	// MigratorFactory creates a migrator. Default: store.NewMigrator.
	MigratorFactory func(url string) (SchemaMigrator, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer.
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker) ObservabilityServer

	// Listen opens the API listener. Default: net.Listen.
	Listen func(network, address string) (net.Listener, error)
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.Connect == nil {
		out.Connect = func(ctx context.Context, url string, logger *slog.Logger) (Database, error) {
			opts := store.DefaultConnectOptions
			opts.Logger = logger
			pool, err := store.Connect(ctx, url, opts)
			if err != nil {
				return nil, err
			}
			return pool, nil
		}
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(url string) (SchemaMigrator, error) {
			m, err := store.NewMigrator(url)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, ready)
		}
	}
	if out.Listen == nil {
		out.Listen = net.Listen
	}
	return &out
}
