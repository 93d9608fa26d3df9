// Package events defines the envelope and payloads published to Kafka by
// the wallet, inventory and order services, and the topics they go to.
package events

import (
	"encoding/json"
	"time"
)

const (
	EventWalletTopUp      = "WalletToppedUp"
	EventStockReserved    = "StockReserved"
	EventStockReleased    = "StockReleased"
	EventStockExpired     = "StockExpired"
	EventStockConfirmed   = "StockConfirmed"
	EventOrderCreated     = "OrderCreated"
	EventOrderPaid        = "OrderPaid"
	EventOrderCancelled   = "OrderCancelled"
	EventOrderRefunded    = "OrderRefunded"
	EventOrderStatusMoved = "OrderStatusMoved"
)

// Envelope is the versioned wrapper around every published event.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // usually order_id
	Payload       json.RawMessage `json:"payload"`
}

type TopUpPayload struct {
	AccountID   string `json:"account_id"`
	AmountCents int64  `json:"amount_cents"`
	Balance     int64  `json:"balance_cents"`
}

type StockPayload struct {
	ProductID     string `json:"product_id"`
	OrderID       string `json:"order_id,omitempty"`
	Qty           int    `json:"qty"`
	ReservationID string `json:"reservation_id,omitempty"`
}

type OrderStatusPayload struct {
	OrderID    string `json:"order_id"`
	AccountID  string `json:"account_id"`
	FromStatus string `json:"from_status,omitempty"`
	ToStatus   string `json:"to_status"`
	TotalCents int64  `json:"total_cents"`
	ActorID    string `json:"actor_id,omitempty"`
}
