package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"example.com/activitydedup/internal/api"
	"example.com/activitydedup/internal/config"
	"example.com/activitydedup/internal/domain"
	"example.com/activitydedup/internal/outbox"
	"example.com/activitydedup/internal/persistence/memory"
	"example.com/activitydedup/internal/persistence/postgres"
	"example.com/activitydedup/internal/scanner"
	httptransport "example.com/activitydedup/internal/transport/http"
)

// backend is satisfied by both storage drivers.
type backend interface {
	domain.UnitOfWork
	domain.FlagStore
	domain.ActivityStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("load config", zap.Error(err))
	}
	if err := config.InitLogger(cfg.Log); err != nil {
		zap.L().Fatal("init logger", zap.Error(err))
	}
	defer zap.L().Sync() //nolint:errcheck
	log := zap.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		store      backend
		dispatcher *outbox.Dispatcher
	)
	switch cfg.StorageDriver {
	case config.DriverMemory:
		log.Warn("using in-memory storage; data is lost on exit")
		store = memory.NewStore()
	default:
		pool, err := postgres.Connect(ctx, cfg.PostgresURL, prometheus.DefaultRegisterer)
		if err != nil {
			log.Fatal("connect to postgres", zap.Error(err))
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			log.Fatal("apply migrations", zap.Error(err))
		}
		store = postgres.NewStore(pool)

		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close() //nolint:errcheck
		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher = outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
		go dispatcher.Start(ctx)
	}

	handler := api.NewHandler(
		domain.NewMergeResolver(store, store),
		domain.NewWorkoutLinker(store),
		domain.NewActivityService(store),
		scanner.NewService(scanner.New(store, cfg.Scanner()), store),
	)
	router := httptransport.NewRouter(httptransport.RouterConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Auth:           cfg.Auth(),
	}, handler.Routes)
	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress), router)

	go func() {
		log.Info("activity-dedup api listening", zap.String("address", cfg.HTTPAddress), zap.String("storage", cfg.StorageDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	if dispatcher != nil {
		dispatcher.Wait()
	}
}
