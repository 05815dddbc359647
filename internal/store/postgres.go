// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

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

// Pool defaults.
const (
	DefaultMaxConns        int32 = 10
	DefaultConnectAttempts       = 5
	DefaultConnectBackoff        = 500 * time.Millisecond
	maxConnectBackoff            = 5 * time.Second
)

// PoolConfig configures OpenPool.
type PoolConfig struct {
	URL      string
	MaxConns int32
	// ConnectAttempts bounds how many pings are tried before giving up.
	ConnectAttempts uint64
	// ConnectBackoff is the first retry delay; later delays double.
	ConnectBackoff time.Duration
	Logger         *slog.Logger
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.MaxConns <= 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.ConnectAttempts == 0 {
		c.ConnectAttempts = DefaultConnectAttempts
	}
	if c.ConnectBackoff <= 0 {
		c.ConnectBackoff = DefaultConnectBackoff
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// ParsePoolConfig parses cfg.URL and applies pool sizing.
func ParsePoolConfig(cfg PoolConfig) (*pgxpool.Config, error) {
	if cfg.URL == "" {
		return nil, oops.Code("DB_CONFIG_INVALID").Errorf("database url is required")
	}
	cfg = cfg.withDefaults()
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		// The URL may carry a password, so it is not attached to the error.
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	return poolCfg, nil
}

// OpenPool creates a pool and pings it until the database answers or the
// attempts run out. The database often starts alongside the service, so
// early connection failures are retried with exponential backoff.
func OpenPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	cfg = cfg.withDefaults()
	poolCfg, err := ParsePoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	backoff := retry.WithMaxRetries(cfg.ConnectAttempts-1,
		retry.WithCappedDuration(maxConnectBackoff, retry.NewExponential(cfg.ConnectBackoff)))

	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if pingErr := pool.Ping(ctx); pingErr != nil {
			cfg.Logger.WarnContext(ctx, "database not ready",
				"attempt", attempt,
				"max_attempts", cfg.ConnectAttempts,
				"error", pingErr)
			return retry.RetryableError(pingErr)
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
	return pool, nil
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadinessCheck returns a readiness probe that pings the database with a
// short timeout.
func ReadinessCheck(p Pinger, timeout time.Duration) func() bool {
	return func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return p.Ping(ctx) == nil
	}
}
