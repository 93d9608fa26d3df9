// Package projection consumes order events and maintains the Redis
// order-status read cache that the API serves GET /orders/{id}/status from.
package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/events"
	kafkax "github.com/Codeclass-SKA/sistem-terdistribusi/internal/kafka"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/redisx"
)

// Cache is the slice of Redis the projector needs. redisx.KV implements it.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, val string, ttl time.Duration) error
}

type Service struct {
	Cache Cache
}

func NewService(cache Cache) *Service {
	return &Service{Cache: cache}
}

// HandleOrderEvent projects the order's latest status into the read cache.
// Consumers redeliver on rebalance, so each event ID is marked once
// handled; the marker is written only after the projection landed, so a
// failed write stays retryable. Events for one order arrive on one worker,
// which keeps the check-then-mark sequence free of same-key races.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// poison message, commit and move on
		log.Printf("projection: undecodable message at offset %d: %v", m.Offset, err)
		return nil
	}

	dedupKey := fmt.Sprintf(redisx.KeyDedup, "projection", env.EventID)
	if _, seen, err := s.Cache.Get(ctx, dedupKey); err != nil {
		return fmt.Errorf("dedup %s: %w", env.EventID, err)
	} else if seen {
		return nil
	}

	payload, err := kafkax.UnwrapPayload[events.OrderStatusPayload](env.Payload)
	if err != nil {
		log.Printf("projection: bad payload in %s event %s: %v", env.EventType, env.EventID, err)
		return nil
	}

	rec, err := json.Marshal(redisx.OrderStatusRecord{
		AccountID: payload.AccountID,
		Status:    payload.ToStatus,
	})
	if err != nil {
		return fmt.Errorf("encode order %s status: %w", payload.OrderID, err)
	}
	statusKey := fmt.Sprintf(redisx.KeyOrderStatus, payload.OrderID)
	if err := s.Cache.Set(ctx, statusKey, string(rec), redisx.TTLStatusCache); err != nil {
		return fmt.Errorf("cache order %s status: %w", payload.OrderID, err)
	}

	if err := s.Cache.Set(ctx, dedupKey, "1", redisx.TTLDedup); err != nil {
		return fmt.Errorf("mark %s handled: %w", env.EventID, err)
	}
	return nil
}
