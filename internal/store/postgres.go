// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KitchenSpark Contributors

// Package store owns the PostgreSQL connection pool and the embedded schema
// migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// PoolConfig configures NewPool.
type PoolConfig struct {
	URL string
	// MaxConns caps the pool size. Zero keeps the pgxpool default.
	MaxConns int32
	// ConnectAttempts bounds how many pings are tried before giving up.
	ConnectAttempts uint64
	// RetryBase is the first backoff interval between pings.
	RetryBase time.Duration
	Logger    *slog.Logger
}

const (
	defaultConnectAttempts = 5
	defaultRetryBase       = 200 * time.Millisecond
	maxRetryInterval       = 5 * time.Second
	pingTimeout            = 5 * time.Second
)

// NewPool creates a pgx pool and waits until the database answers a ping,
// retrying with exponential backoff while it starts up.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attempts := cfg.ConnectAttempts
	if attempts == 0 {
		attempts = defaultConnectAttempts
	}
	base := cfg.RetryBase
	if base <= 0 {
		base = defaultRetryBase
	}

	backoff := retry.WithMaxRetries(attempts-1,
		retry.WithCappedDuration(maxRetryInterval, retry.NewExponential(base)))

	var attempt uint64
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			logger.Warn("database not ready",
				"attempt", attempt,
				"max_attempts", attempts,
				"error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", attempt).
			Wrap(err)
	}

	logger.Info("connected to database",
		"host", poolCfg.ConnConfig.Host,
		"database", poolCfg.ConnConfig.Database,
		"max_conns", poolCfg.MaxConns)
	return pool, nil
}
