// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KitchenSpark Contributors

package main

import (
	"context"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kitchenspark/kitchenspark/internal/observability"
	"github.com/kitchenspark/kitchenspark/internal/store"
)

// Database is the subset of *pgxpool.Pool the commands use.
type Database interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Force(version int) error
	Status() (store.Status, error)
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// CommonDeps are shared by every command that touches the database.
// All fields with nil values will use their default implementations.
type CommonDeps struct {
	// DatabaseFactory opens a connection pool.
	// Default: store.NewPool
	DatabaseFactory func(ctx context.Context, cfg store.PoolConfig) (Database, error)

	// MigratorFactory creates a schema migrator for a database URL.
	// Default: store.NewMigrator
	MigratorFactory func(url string) (Migrator, error)
}

// ServeDeps contains injectable dependencies for the serve command.
type ServeDeps struct {
	CommonDeps

	// ObservabilityServerFactory creates the metrics and probe server.
	// Default: observability.NewServer with the auth metrics registered
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker) ObservabilityServer

	// Listen opens the API listener.
	// Default: net.Listen
	Listen func(network, address string) (net.Listener, error)
}

func (d *CommonDeps) applyDefaults() {
	if d.DatabaseFactory == nil {
		d.DatabaseFactory = func(ctx context.Context, cfg store.PoolConfig) (Database, error) {
			return store.NewPool(ctx, cfg) //nolint:wrapcheck // store errors are already coded
		}
	}
	if d.MigratorFactory == nil {
		d.MigratorFactory = func(url string) (Migrator, error) {
			return store.NewMigrator(url) //nolint:wrapcheck // store errors are already coded
		}
	}
}
