package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"productmaster/attribute"
	"productmaster/channel"
	"productmaster/claim"
	"productmaster/config"
	"productmaster/db"
	"productmaster/httpapi"
	"productmaster/logging"
	"productmaster/migrations"
	"productmaster/outbox"
	"productmaster/refdata"
	"productmaster/threshold"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(logging.Config{
		ServiceName: "productmaster",
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logging.Sync(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("service failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if err := migrations.Up(ctx, cfg.DatabaseURL); err != nil {
		return err
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info("database pool ready")

	refs := refdata.NewPGOracle(pool)
	var catalog refdata.Catalog = refdata.NewPGCatalog(pool)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		catalog = refdata.NewRedisCatalog(catalog, rdb, cfg.CatalogCacheTTL)
		logger.Info("attribute catalog cached in redis", zap.String("addr", cfg.RedisAddr))
	} else {
		catalog = refdata.NewMemoryCatalog(catalog)
	}

	handler := httpapi.NewHandler(
		channel.NewService(pool, nil, refs),
		threshold.NewService(pool, nil, refs),
		attribute.NewService(pool, nil, refs, catalog),
		claim.NewService(pool, nil, refs),
		logger,
	)
	router := httpapi.NewRouter(handler, cfg.JWTSecret, db.Readiness(pool), logger)

	dispatcher := outbox.NewDispatcher(logger, outbox.NewRepository(pool), cfg.KafkaBrokers, outbox.DispatcherConfig{
		BatchSize:  cfg.OutboxBatchSize,
		Interval:   cfg.OutboxInterval,
		MaxRetries: cfg.OutboxMaxRetries,
		Backoff:    cfg.OutboxBackoff,
	})
	defer dispatcher.Close()

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		return dispatcher.Run(groupCtx)
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
