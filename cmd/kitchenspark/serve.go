// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KitchenSpark Contributors

package main

import (
	"context"
	"log/slog"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/kitchenspark/kitchenspark/internal/auth"
	"github.com/kitchenspark/kitchenspark/internal/auth/memory"
	"github.com/kitchenspark/kitchenspark/internal/auth/postgres"
	"github.com/kitchenspark/kitchenspark/internal/config"
	"github.com/kitchenspark/kitchenspark/internal/httpapi"
	"github.com/kitchenspark/kitchenspark/internal/logging"
	"github.com/kitchenspark/kitchenspark/internal/observability"
	"github.com/kitchenspark/kitchenspark/internal/store"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API",
		Long: `Start the account REST API together with the metrics and health
probe server. Runs until SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServeWithDeps(ctx, cfg, cmd, nil)
		},
	}
}

// stores holds the repositories selected by storage.driver.
type stores struct {
	accounts auth.AccountRepository
	activity auth.ActivityLog
	db       Database
}

// runServeWithDeps runs the service until ctx is done or a server fails.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	deps.applyDefaults()
	if deps.Listen == nil {
		deps.Listen = net.Listen
	}

	if err := cfg.Validate(); err != nil {
		return oops.With("operation", "validate configuration").Wrap(err)
	}

	logger, err := logging.SetDefault(logging.Options{
		Service: "kitchenspark",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Writer:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return oops.With("operation", "set up logging").Wrap(err)
	}

	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, version, auth.RegisterMetrics,
				observability.WithReadiness(ready),
				observability.WithLogger(logger))
		}
	}

	logger.Info("starting kitchenspark",
		"http_addr", cfg.HTTP.Addr,
		"storage_driver", cfg.Storage.Driver)

	st, err := openStores(ctx, cfg, &deps.CommonDeps, logger)
	if err != nil {
		return err
	}
	if st.db != nil {
		defer st.db.Close()
	}

	svc, err := newAuthService(cfg, st, logger)
	if err != nil {
		return err
	}

	apiOpts := []httpapi.Option{
		httpapi.WithLogger(logger),
		httpapi.WithConfig(httpapi.Config{
			RequestTimeout: cfg.HTTP.RequestTimeout,
			ReadTimeout:    cfg.HTTP.ReadTimeout,
			WriteTimeout:   cfg.HTTP.WriteTimeout,
		}),
	}
	var ready observability.ReadinessChecker
	if st.db != nil {
		apiOpts = append(apiOpts, httpapi.WithHealthChecker(st.db))
		ready = st.db.Ping
	}
	api, err := httpapi.NewServer(svc, apiOpts...)
	if err != nil {
		return oops.With("operation", "create api server").Wrap(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obsServer ObservabilityServer
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, ready)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability", logger)
	}

	ln, err := deps.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		stopObservability(obsServer, logger)
		return oops.Code("HTTP_LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}

	apiErrCh := make(chan error, 1)
	go func() {
		defer close(apiErrCh)
		if err := api.Serve(ln); err != nil {
			apiErrCh <- err
		}
	}()

	cmd.Println("KitchenSpark started")
	logger.Info("kitchenspark ready", "http_addr", ln.Addr().String())

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down", "reason", context.Cause(ctx))
	case err, ok := <-apiErrCh:
		if ok && err != nil {
			serveErr = oops.With("operation", "serve api").Wrap(err)
			logger.Error("api server failed", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := api.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping api server", "error", err)
	}
	// Shutdown only closes listeners Serve has registered.
	_ = ln.Close()
	stopObservability(obsServer, logger)

	logger.Info("shutdown complete")
	return serveErr
}

// openStores builds the account and activity repositories for the
// configured driver, migrating the schema first when migrations.auto is set.
func openStores(ctx context.Context, cfg *config.Config, deps *CommonDeps, logger *slog.Logger) (*stores, error) {
	if cfg.Storage.Driver == config.DriverMemory {
		logger.Warn("using in-memory storage; accounts are lost on restart")
		return &stores{
			accounts: memory.NewAccountStore(),
			activity: memory.NewActivityStore(),
		}, nil
	}

	if cfg.Migrations.Auto {
		if err := autoMigrate(cfg.Database.URL, deps, logger); err != nil {
			return nil, err
		}
	}

	db, err := deps.DatabaseFactory(ctx, store.PoolConfig{
		URL:             cfg.Database.URL,
		MaxConns:        cfg.Database.MaxConns,
		ConnectAttempts: cfg.Database.ConnectAttempts,
		Logger:          logger,
	})
	if err != nil {
		return nil, oops.With("operation", "connect to database").Wrap(err)
	}

	return &stores{
		accounts: postgres.NewAccountRepository(db),
		activity: postgres.NewActivityRepository(db),
		db:       db,
	}, nil
}

// autoMigrate applies pending migrations before the pool is opened.
func autoMigrate(url string, deps *CommonDeps, logger *slog.Logger) error {
	migrator, err := deps.MigratorFactory(url)
	if err != nil {
		return oops.With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.With("operation", "auto-migrate").Wrap(err)
	}
	logger.Info("database migrations applied")
	return nil
}

func newAuthService(cfg *config.Config, st *stores, logger *slog.Logger) (*auth.Service, error) {
	tokens, err := auth.NewJWTIssuer([]byte(cfg.Auth.TokenSecret),
		auth.WithTokenLifetime(cfg.Auth.TokenLifetime),
		auth.WithTokenIssuer(cfg.Auth.TokenIssuer))
	if err != nil {
		return nil, oops.With("operation", "create token issuer").Wrap(err)
	}

	svc, err := auth.NewService(st.accounts, st.activity, auth.NewArgon2idHasher(), tokens,
		auth.WithLogger(logger))
	if err != nil {
		return nil, oops.With("operation", "create auth service").Wrap(err)
	}
	return svc, nil
}

func stopObservability(srv ObservabilityServer, logger *slog.Logger) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logger.Warn("error stopping observability server", "error", err)
	}
}

// monitorServerErrors cancels the process context when a background server
// fails. It exits when the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok || err == nil {
			return
		}
		logger.Error("server error, triggering shutdown",
			"server", serverName,
			"error", err)
		cancel()
	case <-ctx.Done():
	}
}
