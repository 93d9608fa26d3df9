package redisx

import "time"

const (
	// Idempotency guard records: idmp:{method}:{path}:{key} -> response record
	KeyIdempotency = "idmp:%s:%s:%s"

	// Order status cache: order_status:{order_id} -> OrderStatusRecord JSON
	KeyOrderStatus = "order_status:%s"

	// Consumer dedup: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	// TTLIdempotency bounds how long a stored response is replayed; after
	// expiry the same key may start a new logical operation.
	TTLIdempotency = 1 * time.Hour

	// TTLIdempotencyPending bounds the atomic claim held while the first
	// request is still executing.
	TTLIdempotencyPending = 30 * time.Second

	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)

// OrderStatusRecord is the value stored under KeyOrderStatus. Carrying the
// owner lets readers enforce access on a cache hit without touching the
// database.
type OrderStatusRecord struct {
	AccountID string `json:"account_id"`
	Status    string `json:"status"`
}
