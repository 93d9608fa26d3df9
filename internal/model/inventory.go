package model

import "time"

// Product with its currently available stock. Stock only moves through the
// reservation lifecycle and restocking; every change writes a StockMovement.
type Product struct {
	ID          string
	Name        string
	Description string
	PriceCents  int64
	Stock       int // available units
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ReservationState is the reservation lifecycle state.
// ACTIVE -> {CONFIRMED, RELEASED, EXPIRED}; the three targets are terminal.
type ReservationState string

const (
	ReservationActive    ReservationState = "ACTIVE"
	ReservationConfirmed ReservationState = "CONFIRMED"
	ReservationReleased  ReservationState = "RELEASED"
	ReservationExpired   ReservationState = "EXPIRED"
)

// Terminal reports whether no further transition is allowed.
func (s ReservationState) Terminal() bool { return s != ReservationActive }

// Reservation is a time-bounded hold of product stock for one order.
// At most one non-terminal reservation exists per (product, order).
type Reservation struct {
	ID        string
	ProductID string
	OrderID   string
	Qty       int
	State     ReservationState
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Due reports whether the reservation is ACTIVE but past its expiry.
func (r Reservation) Due(now time.Time) bool {
	return r.State == ReservationActive && now.After(r.ExpiresAt)
}

// MovementReason tags a stock movement.
type MovementReason string

const (
	MovementRestock MovementReason = "RESTOCK"
	MovementReserve MovementReason = "RESERVE"
	MovementConfirm MovementReason = "CONFIRM"
	MovementRelease MovementReason = "RELEASE"
	MovementExpire  MovementReason = "EXPIRE"
)

// StockMovement is an append-only audit record of a stock change. Delta is
// the signed change applied to available stock; CONFIRM carries delta -qty
// with no stock change (the hold became a permanent outflow).
type StockMovement struct {
	ID        string
	ProductID string
	Delta     int
	Reason    MovementReason
	OrderID   string
	Notes     string
	ActorID   string
	CreatedAt time.Time
}
