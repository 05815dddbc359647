// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package main

import (
	"context"
	cryptotls "crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/accountd/accountd/internal/auth"
	"github.com/accountd/accountd/internal/auth/memory"
	"github.com/accountd/accountd/internal/auth/postgres"
	"github.com/accountd/accountd/internal/avatar"
	"github.com/accountd/accountd/internal/config"
	"github.com/accountd/accountd/internal/logging"
	"github.com/accountd/accountd/internal/observability"
	"github.com/accountd/accountd/internal/store"
	"github.com/accountd/accountd/internal/tls"
	"github.com/accountd/accountd/internal/web"
	"github.com/accountd/accountd/pkg/errutil"
)

const (
	serviceName      = "accountd"
	shutdownTimeout  = 10 * time.Second
	readinessTimeout = 2 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the accountd HTTP API and, unless metrics.addr is empty, the
metrics and health server. Stops gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServeWithDeps(ctx, cfg, cmd, nil)
		},
	}

	flags := cmd.Flags()
	flags.String("addr", defaults.HTTP.Addr, "API listen address")
	flags.String("public-url", "", "base URL for reset links (default: derived from the request)")
	flags.Bool("secure-cookies", defaults.HTTP.SecureCookies, "mark the session cookie Secure")
	flags.String("metrics-addr", defaults.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	flags.String("log-format", defaults.Log.Format, "log format (json or text)")
	flags.String("log-level", defaults.Log.Level, "log level (debug, info, warn, error)")
	flags.String("database-url", "", "PostgreSQL URL (default: $"+config.EnvDatabaseURL+")")
	flags.String("store", defaults.Store.Driver, "user store (postgres or memory)")
	flags.String("hasher", defaults.Auth.Hasher, "password hasher (bcrypt or argon2id)")
	flags.String("avatar-dir", defaults.Avatar.Dir, "directory for avatar files (disk driver)")
	flags.String("tls-cert", "", "PEM certificate for HTTPS (with --tls-key)")
	flags.String("tls-key", "", "PEM private key for HTTPS (with --tls-cert)")

	return cmd
}

// runServeWithDeps runs the service until ctx is cancelled or a server
// fails. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()

	if err := cfg.Validate(); err != nil {
		return err //nolint:wrapcheck // config errors carry codes
	}

	logger := logging.SetDefault(serviceName, version, cfg.Log.Format, cfg.Log.Level, cmd.ErrOrStderr())

	logger.Info("starting accountd",
		"addr", cfg.HTTP.Addr,
		"store", cfg.Store.Driver,
		"hasher", cfg.Auth.Hasher,
		"bcrypt_cost", cfg.Auth.BcryptCost,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	users, readiness, closeStore, err := openUserStore(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var obsServer ObservabilityServer
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, readiness, logger)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("SERVE_FAILED").With("operation", "start observability server").Wrap(err)
		}
		defer stopObservability(obsServer, logger)
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability", logger)
	}

	gate, err := newGate(cfg, users, obsServer, logger)
	if err != nil {
		return err
	}

	webOpts := []web.Option{web.WithLogger(logger)}
	if obsServer != nil {
		webOpts = append(webOpts, web.WithRecorder(obsServer.Metrics()))
	}
	if cfg.Avatar.Enabled {
		processor, err := newAvatarProcessor(ctx, cfg.Avatar, deps)
		if err != nil {
			return err
		}
		webOpts = append(webOpts, web.WithAvatars(processor))
	}
	api, err := web.NewServer(gate, web.Options{
		PublicURL:     cfg.HTTP.PublicURL,
		SecureCookies: cfg.HTTP.SecureCookies,
	}, webOpts...)
	if err != nil {
		return oops.Code("SERVE_FAILED").With("operation", "create web server").Wrap(err)
	}

	var tlsConfig *cryptotls.Config
	if cfg.HTTP.TLSEnabled() {
		tlsConfig, err = tls.LoadServerConfig(cfg.HTTP.TLSCertFile, cfg.HTTP.TLSKeyFile)
		if err != nil {
			return oops.Code("SERVE_FAILED").With("operation", "load tls certificate").Wrap(err)
		}
	}

	listener, err := deps.ListenerFactory("tcp", cfg.HTTP.Addr)
	if err != nil {
		return oops.Code("SERVE_FAILED").With("operation", "listen").With("addr", cfg.HTTP.Addr).Wrap(err)
	}
	scheme := "http"
	if tlsConfig != nil {
		listener = cryptotls.NewListener(listener, tlsConfig)
		scheme = "https"
	}
	httpServer := &http.Server{
		Handler:           api.Handler(),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout.Std(),
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	errChan := make(chan error, 1)
	go func() {
		if serveErr := httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()

	addr := listener.Addr().String()
	cmd.Println("accountd listening on " + scheme + "://" + addr)
	logger.Info("accountd ready", "addr", addr, "scheme", scheme)
	deps.Ready(addr)

	var serveErr error
	select {
	case err := <-errChan:
		serveErr = oops.Code("SERVE_FAILED").With("operation", "serve http").Wrap(err)
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping http server", "error", err)
	}

	logger.Info("shutdown complete")
	return serveErr
}

// openUserStore returns the configured user store, a readiness probe for it
// and a close function.
func openUserStore(ctx context.Context, cfg *config.Config, deps *ServeDeps, logger *slog.Logger) (auth.UserStore, observability.ReadinessChecker, func(), error) {
	if cfg.Store.Driver == "memory" {
		logger.Warn("using in-memory user store, accounts are lost on restart")
		return memory.NewUserStore(), func() bool { return true }, func() {}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Database.ConnectTimeout.Std())
	defer cancel()
	pool, err := deps.PoolFactory(connectCtx, store.PoolConfig{
		URL:      cfg.Database.URL,
		MaxConns: cfg.Database.MaxConns,
		Logger:   logger,
	})
	if err != nil {
		return nil, nil, nil, oops.Code("SERVE_FAILED").With("operation", "connect to database").Wrap(err)
	}
	logger.Info("connected to database")
	return postgres.NewUserRepository(pool), store.ReadinessCheck(pool, readinessTimeout), pool.Close, nil
}

func newGate(cfg *config.Config, users auth.UserStore, obsServer ObservabilityServer, logger *slog.Logger) (*auth.Gate, error) {
	hasher, err := auth.NewPasswordHasher(cfg.Auth.Hasher, cfg.Auth.BcryptCost)
	if err != nil {
		return nil, oops.Code("SERVE_FAILED").With("operation", "create password hasher").Wrap(err)
	}
	sessions, err := auth.NewSessionTokens(auth.SessionConfig{
		Secret: []byte(cfg.Auth.SessionSecret),
		TTL:    cfg.Auth.SessionTTL.Std(),
		Issuer: cfg.Auth.Issuer,
	})
	if err != nil {
		return nil, oops.Code("SERVE_FAILED").With("operation", "create session tokens").Wrap(err)
	}

	opts := []auth.GateOption{auth.WithLogger(logger)}
	if obsServer != nil {
		opts = append(opts, auth.WithRecorder(obsServer.Metrics()))
	}
	gate, err := auth.NewGate(users, hasher, sessions, auth.NewResetTokens(), opts...)
	if err != nil {
		return nil, oops.Code("SERVE_FAILED").With("operation", "create auth gate").Wrap(err)
	}
	return gate, nil
}

func newAvatarProcessor(ctx context.Context, cfg config.AvatarConfig, deps *ServeDeps) (*avatar.Processor, error) {
	storage, err := deps.AvatarStorageFactory(ctx, cfg)
	if err != nil {
		return nil, oops.Code("SERVE_FAILED").With("operation", "create avatar storage").Wrap(err)
	}
	processor, err := avatar.NewProcessor(storage, avatar.Options{
		MaxBytes: cfg.MaxBytes,
		Size:     cfg.Size,
		Quality:  cfg.Quality,
		Accept:   cfg.Accept,
	})
	if err != nil {
		return nil, oops.Code("SERVE_FAILED").With("operation", "create avatar processor").Wrap(err)
	}
	return processor, nil
}

func stopObservability(obsServer ObservabilityServer, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := obsServer.Stop(ctx); err != nil {
		errutil.LogWarnContext(ctx, logger, "error stopping observability server", err)
	}
}

// monitorServerErrors cancels ctx when a background server fails. It
// returns when the channel closes or ctx ends.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
