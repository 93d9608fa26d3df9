package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/config"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/events"
	kafkax "github.com/Codeclass-SKA/sistem-terdistribusi/internal/kafka"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/projection"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/redisx"
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := projection.NewService(&redisx.KV{RDB: rdb})

	group := getenv("PROJECTOR_GROUP", "status-projector")
	workers, err := strconv.Atoi(getenv("PROJECTOR_WORKERS", "4"))
	if err != nil {
		workers = 4
	}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, events.TopicOrderEvents, workers)

	go func() {
		log.Printf("projector started: group=%s topic=%s workers=%d", group, events.TopicOrderEvents, workers)
		if err := cons.Start(ctx, svc.HandleOrderEvent); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Println("shutting down projector...")
	cancel()
	time.Sleep(500 * time.Millisecond)
}
