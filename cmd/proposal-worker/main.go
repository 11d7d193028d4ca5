package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aescanero/dago-node-proposal/internal/blocks"
	"github.com/aescanero/dago-node-proposal/internal/config"
	"github.com/aescanero/dago-node-proposal/internal/eval/cel"
	"github.com/aescanero/dago-node-proposal/internal/eval/template"
	"github.com/aescanero/dago-node-proposal/internal/store"
	"github.com/aescanero/dago-node-proposal/internal/worker"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version is set at build time
	Version = "dev"
	// BuildTime is set at build time
	BuildTime = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("proposal worker failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting proposal worker",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("worker_id", cfg.WorkerID),
	)
	logger.Info("configuration loaded", zap.String("config", cfg.String()))

	redisClient, err := connectRedis(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("failed to close redis connection", zap.Error(err))
		}
	}()

	catalog, err := loadCatalog(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.CatalogWatch {
		go func() {
			if err := catalog.Watch(ctx, cfg.CatalogFile, logger); err != nil {
				logger.Error("block catalog watcher stopped", zap.Error(err))
			}
		}()
	}

	w := worker.NewWorker(cfg,
		redisClient,
		store.NewProposalStore(redisClient),
		store.NewTemplateStore(redisClient),
		store.NewRenderCache(redisClient, cfg.RenderCacheTTL),
		newRenderer(cfg, catalog, logger),
		logger,
	)
	if err := w.Start(); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	health := worker.NewHealthServer(cfg.HealthPort, logger)
	health.AddCheck("redis", worker.RedisCheck(redisClient))
	health.AddCheck("catalog", worker.CatalogCheck(catalog))
	health.AddCheck("worker", worker.WorkerCheck(w))
	if err := health.Start(); err != nil {
		return fmt.Errorf("failed to start health server: %w", err)
	}

	logger.Info("proposal worker running, press Ctrl+C to stop")
	<-ctx.Done()
	logger.Info("shutdown signal received, stopping worker")

	if err := health.Stop(); err != nil {
		logger.Error("failed to stop health server", zap.Error(err))
	}

	if err := w.Stop(shutdownTimeout); err != nil {
		logger.Warn("shutdown timeout exceeded, forcing exit", zap.Error(err))
	} else {
		logger.Info("worker stopped gracefully", zap.Any("stats", w.Stats()))
	}
	return nil
}

func connectRedis(cfg *config.Config, logger *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(cfg.RedisOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	return client, nil
}

func loadCatalog(cfg *config.Config, logger *zap.Logger) (*blocks.Catalog, error) {
	catalog := blocks.NewCatalog()
	if cfg.CatalogFile == "" {
		return catalog, nil
	}

	if err := catalog.LoadFile(cfg.CatalogFile); err != nil {
		return nil, fmt.Errorf("failed to load block catalog: %w", err)
	}
	logger.Info("block catalog loaded",
		zap.String("path", cfg.CatalogFile),
		zap.Strings("types", catalog.Types()),
	)
	return catalog, nil
}

func newRenderer(cfg *config.Config, catalog *blocks.Catalog, logger *zap.Logger) *blocks.Renderer {
	engine := template.NewEngine(
		template.WithLogger(logger),
		template.WithEscaping(cfg.EscapeHTML),
		template.WithMaxDepth(cfg.MaxLoopDepth),
		template.WithMaxOutput(cfg.MaxOutputBytes),
	)

	var rules *cel.Evaluator
	if cfg.CELEnabled {
		rules = cel.NewEvaluator()
	} else {
		logger.Warn("cel disabled (block when rules will be ignored)")
	}

	logger.Info("renderer initialized", zap.String("catalog", catalog.Fingerprint()))
	return blocks.NewRenderer(engine, catalog, rules, logger)
}

// initLogger builds a JSON production logger; unknown levels fall back to info
func initLogger(level string) (*zap.Logger, error) {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		zapLevel = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zapCfg.Sampling = nil
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zapCfg.Build()
}
