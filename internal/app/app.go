package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/greyledger/offline-sync/internal/api"
	"github.com/greyledger/offline-sync/internal/config"
	"github.com/greyledger/offline-sync/internal/crypto"
	"github.com/greyledger/offline-sync/internal/observability"
	"github.com/greyledger/offline-sync/internal/remote"
	"github.com/greyledger/offline-sync/internal/session"
	"github.com/greyledger/offline-sync/internal/store"
	"github.com/greyledger/offline-sync/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Run bootstraps the agent, blocking until shutdown: config, logger,
// encrypted store, session against the remote ledger, control API server
// and the connectivity watcher.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var redisClient *redis.Client
	var backend store.Backend
	switch cfg.StorageBackend {
	case config.BackendRedis:
		redisClient, err = newRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
		backend = store.NewRedisBackend(redisClient)
	default:
		backend, err = store.NewFileBackend(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("open data dir: %w", err)
		}
	}

	keys := crypto.NewKeyService(cfg.KDFSalt)
	stored := store.New(backend, keys)
	client := remote.NewClient(cfg.RemoteBaseURL, cfg.RequestTimeout)
	probe := worker.DialProbe(cfg.RemoteBaseURL, cfg.RequestTimeout)

	sess := session.New(keys, stored, client, probe)
	if err := sess.Initialize(ctx, cfg.Passphrase); err != nil {
		return fmt.Errorf("initialize session: %w", err)
	}
	defer sess.Close()

	watcher := worker.NewConnectivityWatcher(sess.Worker(), probe).
		WithInterval(cfg.ProbeInterval)
	stopWatcher := watcher.Run(ctx)
	logger.Info("connectivity watcher started", zap.Duration("interval", cfg.ProbeInterval))

	router := api.NewRouter(cfg, logger, sess, redisClient)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("control api starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping connectivity watcher")
	stopWatcher()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("control api shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
