package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/config"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/events"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/httpx"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/idempotency"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/inventory"
	kafkax "github.com/Codeclass-SKA/sistem-terdistribusi/internal/kafka"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/orders"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/redisx"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/storage/postgres"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/wallet"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	store, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per topic
	pWallet := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicWalletEvents, 1024)
	pWallet.Start(ctx)
	pStock := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicStockEvents, 1024)
	pStock.Start(ctx)
	pOrder := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicOrderEvents, 1024)
	pOrder.Start(ctx)

	// Services
	walletSvc := wallet.NewService(store, pWallet, cfg.ServiceName)
	inventorySvc := inventory.NewService(store, pStock, cfg.ServiceName, cfg.ReservationTTL)
	ordersSvc := orders.NewService(store, pOrder, cfg.ServiceName, cfg.ReservationTTL, cfg.AllowShippedRefund)

	guard := &idempotency.Guard{
		Cache: &idempotency.RedisCache{RDB: rdb},
		TTL:   cfg.IdempotencyTTL,
	}

	router := httpx.NewRouter()
	router.Group(func(g chi.Router) {
		g.Use(httpx.Authenticate)
		g.Use(guard.Middleware)
		(&httpx.WalletHandler{Service: walletSvc}).Register(g)
		(&httpx.InventoryHandler{Service: inventorySvc}).Register(g)
		(&httpx.OrdersHandler{Service: ordersSvc, Cache: &redisx.KV{RDB: rdb}}).Register(g)
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	for _, p := range []*kafkax.Producer{pWallet, pStock, pOrder} {
		p.Close()
	}
	cancel()
	for _, p := range []*kafkax.Producer{pWallet, pStock, pOrder} {
		p.WaitClosed()
	}
}
