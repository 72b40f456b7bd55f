package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-storefront/internal/backend"
	"github.com/ariefcatur/go-storefront/internal/config"
	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/logging"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/redisx"
	"github.com/ariefcatur/go-storefront/internal/watch"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	service := cfg.ServiceName + "-orderwatch"

	log, err := logging.New(cfg.LogLevel, service)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	client := backend.New(cfg.BackendURL, nil).WithToken(cfg.AdminToken)
	svc := &watch.Service{
		Engine:      orders.NewEngine(client, orders.WithLogger(log)),
		Redis:       rdb,
		ServiceName: service,
		Log:         log,
	}
	if err := svc.Engine.Refresh(ctx); err != nil {
		log.Warn("initial order load failed, waiting for events", zap.Error(err))
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.WatchGroup, cfg.OrdersTopic, cfg.WatchWorkers, log)
	log.Info("order watcher started",
		zap.String("group", cfg.WatchGroup),
		zap.String("topic", cfg.OrdersTopic),
		zap.Int("workers", cfg.WatchWorkers),
	)
	if err := cons.Start(ctx, svc.HandleOrderEvent); err != nil {
		log.Error("consumer exit", zap.Error(err))
	}
	log.Info("shutting down consumer")
}
