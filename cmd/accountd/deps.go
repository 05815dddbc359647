// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/auth/postgres"
	"github.com/accountd/accountd/internal/avatar"
	"github.com/accountd/accountd/internal/config"
	"github.com/accountd/accountd/internal/observability"
	"github.com/accountd/accountd/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// PoolFactory opens the PostgreSQL pool.
	// Default: store.OpenPool
	PoolFactory func(ctx context.Context, cfg store.PoolConfig) (Pool, error)

	// AvatarStorageFactory creates the avatar storage backend.
	// Default: disk or S3 per avatar.driver
	AvatarStorageFactory func(ctx context.Context, cfg config.AvatarConfig) (avatar.Storage, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readiness observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// ListenerFactory creates the API listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)

	// Ready is called with the API address once it accepts connections.
	Ready func(addr string)
}

// Pool wraps the methods used from *pgxpool.Pool.
type Pool interface {
	postgres.Querier
	store.Pinger
	Close()
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.PoolFactory == nil {
		out.PoolFactory = func(ctx context.Context, cfg store.PoolConfig) (Pool, error) {
			pool, err := store.OpenPool(ctx, cfg)
			if err != nil {
				return nil, err //nolint:wrapcheck // store errors carry codes
			}
			return pool, nil
		}
	}
	if out.AvatarStorageFactory == nil {
		out.AvatarStorageFactory = newAvatarStorage
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, readiness observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, readiness, logger)
		}
	}
	if out.ListenerFactory == nil {
		out.ListenerFactory = net.Listen
	}
	if out.Ready == nil {
		out.Ready = func(string) {}
	}
	return &out
}

// newAvatarStorage builds the storage backend named by cfg.Driver.
func newAvatarStorage(ctx context.Context, cfg config.AvatarConfig) (avatar.Storage, error) {
	switch cfg.Driver {
	case "disk":
		disk, err := avatar.NewDiskStorage(cfg.Dir)
		if err != nil {
			return nil, err //nolint:wrapcheck // avatar errors carry codes
		}
		return disk, nil
	case "s3":
		bucket, err := avatar.NewS3Storage(ctx, avatar.S3Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			PathStyle: cfg.S3.PathStyle,
		})
		if err != nil {
			return nil, err //nolint:wrapcheck // avatar errors carry codes
		}
		return bucket, nil
	default:
		return nil, oops.Code("CONFIG_INVALID").
			With("key", "avatar.driver").
			Errorf("unknown avatar driver %q", cfg.Driver)
	}
}
