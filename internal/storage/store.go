// Package storage defines the persistence contract for the wallet, stock
// and order ledgers. Implementations must give each WithTx call
// all-or-nothing semantics: if fn returns an error nothing it wrote is
// observable afterwards.
//
// Implementations:
//   - storage/postgres: pgx-backed, row locks and atomic arithmetic.
//   - storage/memory:   mutex-serialized, snapshot/rollback; tests and dev.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/model"
)

// ErrNotFound is returned by point reads when the row does not exist.
// Services wrap it with a domain error naming the entity.
var ErrNotFound = errors.New("storage: not found")

// Store hands out transactions. Every domain operation, reads included,
// runs inside exactly one WithTx call.
type Store interface {
	WithTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the set of operations available inside a transaction.
type Tx interface {
	WalletTx
	StockTx
	OrderTx
}

// WalletTx operates on accounts and balance-changing entries.
type WalletTx interface {
	Account(ctx context.Context, accountID string) (*model.Account, error)
	// EnsureAccount creates the account with zero balance if missing.
	EnsureAccount(ctx context.Context, accountID string, now time.Time) error
	// AddBalance applies delta atomically (single compare-and-write, never
	// read-modify-write in memory) and returns the new balance.
	AddBalance(ctx context.Context, accountID string, delta int64, now time.Time) (int64, error)
	// DebitBalance subtracts amount only if the balance covers it, in one
	// atomic conditional write. ok=false means insufficient funds.
	DebitBalance(ctx context.Context, accountID string, amount int64, now time.Time) (newBalance int64, ok bool, err error)
	InsertEntry(ctx context.Context, e *model.Entry) error
	InsertEntryLog(ctx context.Context, l *model.EntryLog) error
	EntriesByAccount(ctx context.Context, accountID string, limit int) ([]model.Entry, error)
}

// StockTx operates on products, reservations and stock movements.
type StockTx interface {
	Product(ctx context.Context, productID string) (*model.Product, error)
	// ProductForUpdate reads the product under an exclusive row lock. All
	// reservation-lifecycle writes for a product happen under this lock.
	ProductForUpdate(ctx context.Context, productID string) (*model.Product, error)
	Products(ctx context.Context) ([]model.Product, error)
	InsertProduct(ctx context.Context, p *model.Product) error
	// AddStock applies delta to available stock atomically and returns the
	// new value.
	AddStock(ctx context.Context, productID string, delta int, now time.Time) (int, error)
	ActiveReservation(ctx context.Context, productID, orderID string) (*model.Reservation, error)
	InsertReservation(ctx context.Context, r *model.Reservation) error
	ReservationsByOrder(ctx context.Context, orderID string, state model.ReservationState) ([]model.Reservation, error)
	// SetReservationState transitions id from->to; ok=false if the row was
	// not in `from` (lost race or already terminal).
	SetReservationState(ctx context.Context, id string, from, to model.ReservationState) (bool, error)
	// DueReservations returns ACTIVE reservations whose expiry has passed.
	// Empty productID means all products (sweep); limit <= 0 means no limit.
	DueReservations(ctx context.Context, productID string, now time.Time, limit int) ([]model.Reservation, error)
	InsertMovement(ctx context.Context, m *model.StockMovement) error
	MovementsByProduct(ctx context.Context, productID string, limit int) ([]model.StockMovement, error)
}

// OrderTx operates on orders, their items and status history.
type OrderTx interface {
	Order(ctx context.Context, orderID string) (*model.Order, error)
	// OrderForUpdate reads the order under an exclusive row lock; status
	// transitions are serialized through it.
	OrderForUpdate(ctx context.Context, orderID string) (*model.Order, error)
	OrdersByAccount(ctx context.Context, accountID string) ([]model.Order, error)
	InsertOrder(ctx context.Context, o *model.Order) error
	InsertOrderItems(ctx context.Context, items []model.OrderItem) error
	OrderItems(ctx context.Context, orderID string) ([]model.OrderItem, error)
	// SetOrderStatus transitions orderID from->to guarded on the current
	// status; ok=false if the order was not in `from`.
	SetOrderStatus(ctx context.Context, orderID string, from, to model.OrderStatus, now time.Time) (bool, error)
	InsertStatusHistory(ctx context.Context, h *model.OrderStatusHistory) error
	StatusHistory(ctx context.Context, orderID string) ([]model.OrderStatusHistory, error)
}
