package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Harshitk-cp/marginal/internal/api"
	"github.com/Harshitk-cp/marginal/internal/buildconfig"
	"github.com/Harshitk-cp/marginal/internal/config"
	"github.com/Harshitk-cp/marginal/internal/store"
	"github.com/Harshitk-cp/marginal/internal/store/sqlite"
)

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}

	logger, err := newLogger(config.LogLevel())
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	stores, closeStores, err := openStores(ctx, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("driver", config.StoreDriver()), zap.Error(err))
	}
	defer closeStores()

	app, err := api.NewApp(stores, logger)
	if err != nil {
		logger.Fatal("failed to build app", zap.Error(err))
	}

	// Start background services
	app.Expirer.Start()

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting",
			zap.String("addr", addr),
			zap.String("version", buildconfig.Version()),
			zap.String("commit", buildconfig.Commit()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	app.Expirer.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	return cfg.Build()
}

func openStores(ctx context.Context, logger *zap.Logger) (api.Stores, func(), error) {
	switch config.StoreDriver() {
	case "postgres":
		dbURL := config.DatabaseURL()
		if dbURL == "" {
			logger.Fatal("DATABASE_URL is required for the postgres driver")
		}
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			return api.Stores{}, nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return api.Stores{}, nil, err
		}
		if err := store.Migrate(ctx, pool); err != nil {
			pool.Close()
			return api.Stores{}, nil, err
		}
		logger.Info("connected to postgres")
		return api.Stores{
			Networks: store.NewNetworkStore(pool),
			Queries:  store.NewQueryStore(pool),
			Ping:     pool.Ping,
		}, pool.Close, nil

	case "sqlite":
		db, err := sqlite.Open(ctx, config.SQLitePath())
		if err != nil {
			return api.Stores{}, nil, err
		}
		logger.Info("opened sqlite database", zap.String("path", config.SQLitePath()))
		return api.Stores{
			Networks: db.Networks(),
			Queries:  db.Queries(),
			Ping:     db.Ping,
		}, func() { _ = db.Close() }, nil

	default:
		logger.Fatal("unknown STORE_DRIVER", zap.String("driver", config.StoreDriver()))
		return api.Stores{}, nil, nil
	}
}
