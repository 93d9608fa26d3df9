package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/config"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/events"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/inventory"
	kafkax "github.com/Codeclass-SKA/sistem-terdistribusi/internal/kafka"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer store.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicStockEvents, 1024)
	prod.Start(ctx)

	svc := inventory.NewService(store, prod, cfg.ServiceName+"-sweeper", cfg.ReservationTTL)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	log.Printf("sweeper started: interval=%s", cfg.SweepInterval)
	go svc.RunSweeper(ctx, cfg.SweepInterval)

	<-sig
	log.Println("shutting down sweeper...")
	prod.Close()
	cancel()
	prod.WaitClosed()
}
