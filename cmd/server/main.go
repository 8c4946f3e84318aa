package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"match-lab/auth"
	"match-lab/contract"
	"match-lab/infrastructure/catalog"
	"match-lab/infrastructure/http/server"
	"match-lab/infrastructure/pubsub"
	"match-lab/infrastructure/sqlstore"
	"match-lab/infrastructure/storage"
	"match-lab/internal"
	"match-lab/runtime"
	"match-lab/runtime/workers"
	"match-lab/services"
	"match-lab/sink"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
)

// Exit codes reported to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 10 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal or a fatal error.
// Returning instead of exiting lets the deferred closes run.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	policy, err := config.Policy()
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	// 2. Storage
	store, closeStore, err := openStore(ctx, config, logger)
	if err != nil {
		return exitRuntime, err
	}
	defer closeStore()

	// 3. Catalog
	var tmdb *catalog.TMDBClient
	if config.TMDBApiKey != "" {
		tmdb = catalog.NewTMDBClient(config.TMDBBaseURL, config.TMDBApiKey, &http.Client{Timeout: config.CatalogTimeout})
	} else {
		logger.Warn("TMDB_API_KEY not set, rooms use the static catalog")
	}
	provider, err := catalog.NewProvider(logger, tmdb, config.CatalogTimeout, config.CatalogCacheSize)
	if err != nil {
		return exitRuntime, fmt.Errorf("catalog cache init failed: %w", err)
	}
	defer provider.Close()

	// 4. Supervision & Orchestration
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	registry := runtime.NewRegistry()
	orchestrator := runtime.NewOrchestrator(
		logger, sup, registry, store,
		config.BufferSize,
		config.SinkTimeout, config.SweepInterval, config.MetricInterval,
	)
	orchestrator.Add(sink.NewLogSink(logger))

	sessionService := services.NewSessionService(logger, store, provider, orchestrator, policy)
	orchestrator.AddWorkers(workers.NewRoomJanitor(logger, sessionService, config.RoomJanitorSpec, config.RoomIdleTimeout))

	if config.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: config.RedisAddr})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return exitRuntime, fmt.Errorf("redis unreachable at %s: %w", config.RedisAddr, err)
		}
		origin := uuid.NewString()
		orchestrator.Add(pubsub.NewPublisher(rdb, origin))
		orchestrator.AddWorkers(pubsub.NewBridge(logger, rdb, origin, registry, orchestrator))
		logger.Info("Cross-instance fan-out enabled", "redis", config.RedisAddr, "origin", origin)
	}

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 2)

	go func() {
		logger.Info("Starting orchestrator...")
		if err := orchestrator.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errChan <- fmt.Errorf("orchestrator error: %w", err)
		}
	}()

	// 6. HTTP Server
	issuer := auth.NewTokenIssuer(config.AuthSecret, config.AuthTokenDuration)
	identityService := services.NewIdentityService(issuer)
	api := server.NewServer(logger, sessionService, identityService, provider, issuer, orchestrator,
		config.ConnectionBufferSize, config.SinkTimeout,
		server.WithAllowedOrigins(config.Origins()),
		server.WithPublicURL(config.PublicURL),
	)

	address := net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
	httpServer := &http.Server{
		Addr:              address,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		logger.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		orchestrator.Stop()
		return exitRuntime, err
	}

	// 8. Graceful Shutdown
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server did not stop cleanly", "error", err)
	}
	orchestrator.Stop()
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

// openStore returns the store selected by STORAGE_DRIVER and its close function.
func openStore(ctx context.Context, config internal.Config, logger *slog.Logger) (contract.Store, func(), error) {
	switch config.StorageDriver {
	case internal.DriverBadger:
		db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
		if err != nil {
			return nil, nil, fmt.Errorf("database opening failed: %w", err)
		}
		if logger.Enabled(ctx, slog.LevelDebug) {
			endpoint := "/inspect"
			url := fmt.Sprintf("http://localhost:%d%s?prefix=room:", config.DebugPort, endpoint)
			logger.Info("Debug Badger inspector available", "url", url)
			database.StartDebugServer(db, config.DebugPort, endpoint, internal.RoomMapper)
		}
		closeFn := func() {
			logger.Info("Closing BadgerDB...")
			_ = db.Close()
		}
		return storage.NewBadgerStore(db, logger, config.StoreMaxRetries), closeFn, nil
	default:
		db, err := sqlstore.Open(config.StorageDriver, config.DatabaseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("database opening failed: %w", err)
		}
		store, err := sqlstore.NewSQLStore(db, logger, config.StoreMaxRetries)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			logger.Info("Closing SQL store...")
			_ = store.Close()
		}
		return store, closeFn, nil
	}
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG)
	} else {
		options = options.WithLoggingLevel(badger.WARNING)
	}

	return options
}
