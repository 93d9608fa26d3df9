package kafka

import (
	"context"
	"hash/fnv"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// Handler must return nil only when the message is fully processed and its
// offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

// Consumer reads a topic with a consumer group and fans messages out to a
// worker pool. Messages sharing a key always land on the same worker, so
// events for one aggregate are handled in the order they were read.
// Offsets are committed per message, after the handler succeeds.
type Consumer struct {
	r       *kafka.Reader
	workers int
}

func NewConsumer(brokers []string, group, topic string, workers int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers}
}

// shard maps a message key to a worker index. Keyless messages all go to
// worker 0.
func shard(key []byte, workers int) int {
	if workers <= 1 || len(key) == 0 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write(key)
	return int(h.Sum32() % uint32(workers))
}

func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make([]chan kafka.Message, c.workers)
	for i := range jobs {
		jobs[i] = make(chan kafka.Message, 64)
	}
	closeAll := func() {
		for _, ch := range jobs {
			close(ch)
		}
	}
	errs := make(chan error, c.workers)

	for i := 0; i < c.workers; i++ {
		go func(in <-chan kafka.Message) {
			for m := range in {
				if err := h(ctx, m); err != nil {
					errs <- err
					continue
				}
				if err := c.r.CommitMessages(ctx, m); err != nil {
					errs <- err
				}
			}
		}(jobs[i])
	}

	for {
		m, err := c.r.ReadMessage(ctx)
		if err != nil {
			closeAll()
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		select {
		case jobs[shard(m.Key, c.workers)] <- m:
		case <-ctx.Done():
			closeAll()
			return nil
		}

		// drain worker errors without blocking the dispatch loop
		select {
		case e := <-errs:
			log.Printf("worker error: %v", e)
			time.Sleep(200 * time.Millisecond)
		default:
		}
	}
}
