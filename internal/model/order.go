package model

import "time"

type OrderStatus string

const (
	StatusCreated   OrderStatus = "CREATED"
	StatusPaid      OrderStatus = "PAID"
	StatusShipped   OrderStatus = "SHIPPED"
	StatusDelivered OrderStatus = "DELIVERED"
	StatusCancelled OrderStatus = "CANCELLED"
	StatusRefunded  OrderStatus = "REFUNDED"
)

var validNext = map[OrderStatus]map[OrderStatus]bool{
	StatusCreated:   {StatusPaid: true, StatusCancelled: true},
	StatusPaid:      {StatusShipped: true, StatusCancelled: true, StatusRefunded: true},
	StatusShipped:   {StatusDelivered: true, StatusRefunded: true},
	StatusDelivered: {},
	StatusCancelled: {},
	StatusRefunded:  {},
}

// CanTransition reports whether from -> to is an edge of the order graph.
func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

// ValidStatus reports whether s is a known order status.
func ValidStatus(s OrderStatus) bool {
	_, ok := validNext[s]
	return ok
}

// Order with a price snapshot taken at creation time. Total is the sum of
// item subtotals and is never re-derived from current product prices.
type Order struct {
	ID              string
	AccountID       string
	Status          OrderStatus
	TotalCents      int64
	ShippingAddress string
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type OrderItem struct {
	ID             string
	OrderID        string
	ProductID      string
	ProductName    string
	UnitPriceCents int64
	Qty            int
	SubtotalCents  int64
}

// OrderStatusHistory is the append-only record of status transitions.
// From is empty for the creation row.
type OrderStatusHistory struct {
	ID        string
	OrderID   string
	From      OrderStatus
	To        OrderStatus
	ActorID   string
	Notes     string
	CreatedAt time.Time
}
