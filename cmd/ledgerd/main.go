package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"creatorpay/config"
	"creatorpay/core/ledger"
	"creatorpay/observability/logging"
	telemetry "creatorpay/observability/otel"
	"creatorpay/services/ledgerd"
	"creatorpay/services/ledgerd/auditlog"
	"creatorpay/storage"
)

const (
	envVar          = "CREATORPAY_ENV"
	shutdownTimeout = 15 * time.Second
)

// version is stamped at build time with -ldflags.
var version = "dev"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file (.toml, .yaml)")
	allowMigrate := flag.Bool("allow-migrate", false, "Allow starting with a mismatched state schema (manual migrations only)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	env := strings.TrimSpace(os.Getenv(envVar))
	if env == "" {
		env = cfg.Environment
	}
	logger := logging.SetupWithFile("ledgerd", env, logging.FileOptions{Path: cfg.LogFile})
	logger.Info("configuration loaded", configAttrs(*configFile, cfg)...)

	if err := run(cfg, env, *allowMigrate || cfg.AllowMigrate, logger); err != nil {
		logger.Error("ledgerd exited", slog.Any("error", err))
		os.Exit(1)
	}
}

// configAttrs summarises cfg for the startup log. Credentials and anything
// that may embed them are masked.
func configAttrs(path string, cfg *config.Config) []any {
	return []any{
		slog.String("path", path),
		slog.String("listen", cfg.ListenAddress),
		slog.String("data_dir", cfg.DataDir),
		slog.String("audit_driver", cfg.Audit.Driver),
		logging.MaskField("audit_dsn", cfg.Audit.DSN),
		logging.MaskField("jwt_secret", cfg.Auth.JWTSecret),
		slog.String("jwt_secret_env", cfg.Auth.JWTSecretEnv),
		slog.String("telemetry_endpoint", cfg.Telemetry.Endpoint),
		logging.MaskField("telemetry_headers", cfg.Telemetry.Headers),
	}
}

func run(cfg *config.Config, env string, allowMigrate bool, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "ledgerd",
		ServiceVersion: version,
		Environment:    env,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		Headers:        telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:        cfg.Telemetry.Metrics,
		Traces:         cfg.Telemetry.Traces,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	genesis, err := cfg.Genesis()
	if err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	db, err := storage.NewLevelDBWithOptions(filepath.Join(cfg.DataDir, "ledger"), storage.LevelDBOptions{
		CacheMB: cfg.Storage.CacheMB,
		Handles: cfg.Storage.Handles,
	})
	if err != nil {
		return fmt.Errorf("open ledger database: %w", err)
	}
	defer db.Close()

	l, err := ledger.Open(db, ledger.Options{
		Genesis:      genesis,
		AllowMigrate: allowMigrate,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	logger.Info("ledger opened",
		slog.Uint64("height", l.Height()),
		slog.String("root", l.Hash().Hex()))

	gdb, err := auditlog.Open(cfg.Audit.Driver, cfg.Audit.DSN)
	if err != nil {
		return fmt.Errorf("open audit database: %w", err)
	}
	if sqlDB, err := gdb.DB(); err == nil {
		defer sqlDB.Close()
	}
	audit, err := auditlog.New(ctx, gdb, logger)
	if err != nil {
		return err
	}
	if err := audit.Verify(ctx); err != nil {
		return fmt.Errorf("audit log: %w", err)
	}

	secret, err := cfg.Auth.JWTSecretValue()
	if err != nil {
		return err
	}
	auth, err := ledgerd.NewAuthenticator(secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL.Duration)
	if err != nil {
		return err
	}
	srv, err := ledgerd.New(ledgerd.Config{
		Ledger: l,
		Audit:  audit,
		Auth:   auth,
		RateLimit: ledgerd.RateLimit{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("ledgerd listening", slog.String("addr", cfg.ListenAddress))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
