// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/tourbook/tourbook/internal/auth"
	"github.com/tourbook/tourbook/internal/auth/postgres"
	"github.com/tourbook/tourbook/internal/config"
	"github.com/tourbook/tourbook/internal/httpapi"
	"github.com/tourbook/tourbook/internal/logging"
	"github.com/tourbook/tourbook/internal/mail"
	"github.com/tourbook/tourbook/pkg/errutil"
)

// readinessPingTimeout bounds the database check behind /healthz/readiness.
const readinessPingTimeout = 2 * time.Second

const defaultShutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return newServeCmd(nil)
}

func newServeCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the account API",
		Long: `Start the account API and, when metrics.addr is set, the metrics and
health endpoints. Runs until SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, cfg, deps)
		},
	}
}

// runServe starts the API with injectable dependencies and blocks until ctx
// is done or a server fails.
func runServe(ctx context.Context, cmd *cobra.Command, cfg *config.Config, deps *Deps) error {
	deps = deps.withDefaults()

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.Setup(version, cfg.Log.Format, cfg.Log.Level, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	logger.Info("starting tourbook",
		"http_addr", cfg.HTTP.Addr,
		"metrics_addr", cfg.Metrics.Addr,
		"database", cfg.DatabaseURLRedacted())

	if cfg.Database.AutoMigrate {
		if err := autoMigrate(deps, cfg.Database.URL, logger); err != nil {
			return err
		}
	}

	db, err := deps.Connect(ctx, cfg.Database.URL, logger)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer db.Close()
	logger.Info("connected to database")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var ready atomic.Bool
	readiness := func() bool {
		if !ready.Load() {
			return false
		}
		pingCtx, pingCancel := context.WithTimeout(context.Background(), readinessPingTimeout)
		defer pingCancel()
		return db.Ping(pingCtx) == nil
	}

	svcOpts := []auth.Option{auth.WithLogger(logger)}
	apiOpts := httpapi.Options{CookieSecure: cfg.Auth.CookieSecure, Logger: logger}

	var obsServer ObservabilityServer
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, readiness)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		defer stopServer(logger, "observability", obsServer.Stop, cfg.HTTP.ShutdownTimeout)
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability", logger)

		metrics := obsServer.Metrics()
		svcOpts = append(svcOpts, auth.WithRecorder(metrics))
		apiOpts.Recorder = metrics
	}

	svc, err := newAuthService(cfg, db, logger, svcOpts...)
	if err != nil {
		return err
	}

	handler, err := httpapi.NewHandler(svc, apiOpts)
	if err != nil {
		return err
	}
	gin.SetMode(gin.ReleaseMode)

	listener, err := deps.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return oops.Code("HTTP_LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}
	apiServer := &http.Server{
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	apiErrCh := make(chan error, 1)
	go func() {
		defer close(apiErrCh)
		if serveErr := apiServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			apiErrCh <- serveErr
		}
	}()
	defer stopServer(logger, "api", apiServer.Shutdown, cfg.HTTP.ShutdownTimeout)

	ready.Store(true)
	cmd.Println("Tourbook API listening on " + listener.Addr().String())
	logger.Info("tourbook ready", "http_addr", listener.Addr().String())

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err, ok := <-apiErrCh:
		if !ok {
			return nil
		}
		return oops.Code("HTTP_SERVE_FAILED").Wrap(err)
	}
}

// newAuthService wires the account service to PostgreSQL and mail.
func newAuthService(cfg *config.Config, db postgres.DB, logger *slog.Logger, opts ...auth.Option) (*auth.Service, error) {
	hasher, err := auth.NewArgon2idHasher(cfg.Auth.Argon2.Params())
	if err != nil {
		return nil, err
	}
	signer, err := auth.NewTokenSigner([]byte(cfg.Auth.JWTSecret), time.Now)
	if err != nil {
		return nil, err
	}
	mailer, err := mail.New(mail.Config{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
		BaseURL:  cfg.Mail.BaseURL,
		Timeout:  cfg.Mail.Timeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	opts = append(opts,
		auth.WithMailer(mailer),
		auth.WithSessionTTL(cfg.Auth.SessionTTL),
		auth.WithCookieTTL(cfg.Auth.CookieTTL),
	)
	return auth.NewService(postgres.NewAccountRepository(db), hasher, signer, opts...)
}

// autoMigrate applies pending migrations before the service starts.
func autoMigrate(deps *Deps, url string, logger *slog.Logger) error {
	migrator, err := deps.MigratorFactory(url)
	if err != nil {
		return oops.Code("AUTO_MIGRATE_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			errutil.LogError(logger, "failed to close migrator", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATE_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	logger.Info("database migrations applied")
	return nil
}

func stopServer(logger *slog.Logger, name string, stop func(context.Context) error, timeout time.Duration) {
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		logger.Warn("error stopping server", "server", name, "error", err)
	}
}

// monitorServerErrors cancels ctx when a server reports a serve error. It
// returns when errCh closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, name string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			logger.Error("server error, triggering shutdown", "server", name, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
