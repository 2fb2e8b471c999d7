package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-bakery-orders/internal/config"
	"github.com/ariefcatur/go-bakery-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-bakery-orders/internal/kafka"
	"github.com/ariefcatur/go-bakery-orders/internal/logx"
	"github.com/ariefcatur/go-bakery-orders/internal/orders"
	"github.com/ariefcatur/go-bakery-orders/internal/postgres"
	"github.com/ariefcatur/go-bakery-orders/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logx.Init(cfg.LogMode, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	loc, err := cfg.Location()
	if err != nil {
		zap.L().Fatal("config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store
	var store orders.Store
	switch cfg.StoreDriver {
	case "memory":
		zap.L().Warn("using in-memory store; data is lost on restart")
		store = orders.NewMemoryStore()
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			zap.L().Fatal("db connect", zap.Error(err))
		}
		defer db.Close()
		if cfg.MigrateOnStart {
			if err := postgres.Migrate(ctx, db); err != nil {
				zap.L().Fatal("db migrate", zap.Error(err))
			}
		}
		store = &orders.Repo{DB: db}
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024)
	prod.Start(ctx)

	engine := &orders.Engine{
		Store: store,
		Coupons: &orders.CouponValidator{
			Coupons:  store,
			Clock:    orders.SystemClock{},
			Location: loc,
		},
		States: orders.NewStateSet(cfg.FulfillmentStates, cfg.TerminalStates),
		Clock:  orders.SystemClock{},
	}

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Engine:   engine,
		Producer: prod,
		Redis:    rdb,
		Service:  cfg.ServiceName,
		Payment:  cfg.Payment,
	}
	oh.Register(router)
	ah := &httpx.AdminHandler{Orders: oh, LowStock: &redisx.LowStockBoard{RDB: rdb}}
	ah.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zap.L().Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	// graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		zap.L().Error("server exit", zap.Error(err))
	}
	prod.Close()      // tutup inbox -> flush & close writer
	prod.WaitClosed() // drain
}
