package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-bakery-orders/internal/config"
	"github.com/ariefcatur/go-bakery-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-bakery-orders/internal/kafka"
	"github.com/ariefcatur/go-bakery-orders/internal/logx"
	"github.com/ariefcatur/go-bakery-orders/internal/orders"
	"github.com/ariefcatur/go-bakery-orders/internal/postgres"
	"github.com/ariefcatur/go-bakery-orders/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logx.Init(cfg.LogMode, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		zap.L().Fatal("db", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &inventory.Service{
		Catalog:     &orders.Repo{DB: db},
		Redis:       rdb,
		Board:       &redisx.LowStockBoard{RDB: rdb},
		ServiceName: cfg.ServiceName + "-stockwatch",
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.StockwatchGroup, inventory.Topics, cfg.StockwatchWorkers)
	zap.L().Info("stockwatch consumer started",
		zap.String("group", cfg.StockwatchGroup),
		zap.Strings("topics", inventory.Topics),
		zap.Int("workers", cfg.StockwatchWorkers),
	)
	if err := cons.Start(ctx, svc.HandleEvent); err != nil {
		zap.L().Error("consumer exit", zap.Error(err))
	}
	zap.L().Info("stockwatch stopped")
}
