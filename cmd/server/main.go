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
	"syscall"
	"time"

	"github.com/iudanet/tasksync/internal/server/handlers"
	"github.com/iudanet/tasksync/internal/server/middleware"
	"github.com/iudanet/tasksync/internal/server/realtime"
	"github.com/iudanet/tasksync/internal/server/storage/sqlite"
	"github.com/iudanet/tasksync/internal/server/syncsvc"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

const shutdownTimeout = 10 * time.Second

type config struct {
	addr               string
	dbPath             string
	jwtSecret          string
	logLevel           string
	encryptionRequired bool
	rateLimit          int
	rateWindow         time.Duration
}

func main() {
	cfg := parseFlags()

	logger := newLogger(cfg.logLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func parseFlags() config {
	var cfg config

	showVersion := flag.Bool("version", false, "Show version information")
	flag.StringVar(&cfg.addr, "addr", ":8080", "HTTP listen address")
	flag.StringVar(&cfg.dbPath, "db", "tasksync.db", "path to SQLite database")
	flag.StringVar(&cfg.jwtSecret, "jwt-secret", os.Getenv("TASKSYNC_JWT_SECRET"), "JWT signing secret (defaults to TASKSYNC_JWT_SECRET env)")
	flag.StringVar(&cfg.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flag.BoolVar(&cfg.encryptionRequired, "encryption-required", true, "require frame encryption on realtime connections")
	flag.IntVar(&cfg.rateLimit, "rate-limit", 100, "max sync requests per client per window")
	flag.DurationVar(&cfg.rateWindow, "rate-window", time.Minute, "rate limit window")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	return cfg
}

func run(cfg config, logger *slog.Logger) error {
	if cfg.jwtSecret == "" {
		return errors.New("jwt secret is required (set -jwt-secret or TASKSYNC_JWT_SECRET)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Хранилище: единый sqlite-файл, миграции применяются при старте
	store, err := sqlite.New(ctx, cfg.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close storage", "error", err)
		}
	}()

	hub := realtime.NewHub(logger)
	go hub.Run(ctx)

	ledger := syncsvc.NewVersionLedger(store)
	coordinator := syncsvc.NewCoordinator(logger, ledger, store, hub)

	jwtConfig := handlers.JWTConfig{
		Secret:         []byte(cfg.jwtSecret),
		AccessTokenTTL: 15 * time.Minute,
	}

	rl := middleware.NewRateLimiter(cfg.rateLimit, cfg.rateWindow, logger)
	defer rl.Stop()

	syncHandler := handlers.NewSyncHandler(logger, coordinator)
	wsHandler := handlers.NewWSHandler(logger, hub, cfg.encryptionRequired)
	healthHandler := handlers.NewHealthHandler(logger, Version)

	auth := middleware.AuthMiddleware(logger, jwtConfig)
	limit := middleware.RateLimitMiddleware(rl)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/sync", auth(limit(http.HandlerFunc(syncHandler.HandleSync))))
	mux.Handle("/api/v1/ws", auth(http.HandlerFunc(wsHandler.HandleWS)))
	mux.HandleFunc("/api/v1/health", healthHandler.Health)

	// Внешняя цепочка: recovery перехватывает паники и в логирующем слое
	handler := middleware.RecoveryMiddleware(logger)(
		middleware.LoggingMiddleware(logger, "/api/v1/health")(mux),
	)

	srv := &http.Server{
		Addr:              cfg.addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.addr, "version", Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func printVersion() {
	fmt.Printf("TaskSync Server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
