package projection_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/events"
	kafkax "github.com/Codeclass-SKA/sistem-terdistribusi/internal/kafka"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/projection"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/redisx"
)

// fakeCache is an in-memory projection.Cache that can fail writes to a
// chosen key a set number of times.
type fakeCache struct {
	mu     sync.Mutex
	data   map[string]string
	sets   map[string]int
	failOn map[string]int
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		data:   map[string]string{},
		sets:   map[string]int{},
		failOn: map[string]int{},
	}
}

func (c *fakeCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.data[key]
	return s, ok, nil
}

func (c *fakeCache) Set(_ context.Context, key, val string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failOn[key] > 0 {
		c.failOn[key]--
		return errors.New("connection reset")
	}
	c.data[key] = val
	c.sets[key]++
	return nil
}

func orderEvent(eventID, orderID, account, from, to string) kafkago.Message {
	env := events.Envelope{
		EventID:       eventID,
		EventType:     events.EventOrderPaid,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      "test",
		CorrelationID: orderID,
		Payload: kafkax.MustMarshal(events.OrderStatusPayload{
			OrderID:    orderID,
			AccountID:  account,
			FromStatus: from,
			ToStatus:   to,
			TotalCents: 3000,
		}),
	}
	return kafkago.Message{Key: events.PartitionKey(orderID), Value: kafkax.MustMarshal(env)}
}

func TestHandleOrderEvent_ProjectsOwnerAndStatus(t *testing.T) {
	cache := newFakeCache()
	svc := projection.NewService(cache)
	ctx := context.Background()

	require.NoError(t, svc.HandleOrderEvent(ctx, orderEvent("ev-1", "ord-1", "alice", "CREATED", "PAID")))

	raw, ok, err := cache.Get(ctx, fmt.Sprintf(redisx.KeyOrderStatus, "ord-1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"account_id":"alice","status":"PAID"}`, raw)
}

func TestHandleOrderEvent_RedeliveryAppliedOnce(t *testing.T) {
	cache := newFakeCache()
	svc := projection.NewService(cache)
	ctx := context.Background()

	m := orderEvent("ev-1", "ord-1", "alice", "CREATED", "PAID")
	require.NoError(t, svc.HandleOrderEvent(ctx, m))
	require.NoError(t, svc.HandleOrderEvent(ctx, m))

	assert.Equal(t, 1, cache.sets[fmt.Sprintf(redisx.KeyOrderStatus, "ord-1")])
}

// A failed status write must leave the event unmarked so the redelivery
// projects it.
func TestHandleOrderEvent_FailedWriteIsRetryable(t *testing.T) {
	cache := newFakeCache()
	svc := projection.NewService(cache)
	ctx := context.Background()

	statusKey := fmt.Sprintf(redisx.KeyOrderStatus, "ord-1")
	dedupKey := fmt.Sprintf(redisx.KeyDedup, "projection", "ev-1")
	cache.failOn[statusKey] = 1

	m := orderEvent("ev-1", "ord-1", "alice", "CREATED", "PAID")
	require.Error(t, svc.HandleOrderEvent(ctx, m))
	_, marked, err := cache.Get(ctx, dedupKey)
	require.NoError(t, err)
	assert.False(t, marked)

	require.NoError(t, svc.HandleOrderEvent(ctx, m))
	raw, ok, err := cache.Get(ctx, statusKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, raw, "PAID")
	_, marked, err = cache.Get(ctx, dedupKey)
	require.NoError(t, err)
	assert.True(t, marked)
}

func TestHandleOrderEvent_PoisonMessageSkipped(t *testing.T) {
	cache := newFakeCache()
	svc := projection.NewService(cache)

	err := svc.HandleOrderEvent(context.Background(), kafkago.Message{Value: []byte("not json{")})
	require.NoError(t, err)
	assert.Empty(t, cache.data)
}
