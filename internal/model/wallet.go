// Package model defines the persisted entities shared by the wallet,
// inventory and order domains. All monetary amounts are int64 minor units
// (cents); balances are mutated only through balance-changing entries.
package model

import "time"

// Account is a principal's money balance. The balance is never written
// directly: every change goes through an Entry inside the same transaction.
type Account struct {
	ID        string
	Balance   int64 // cents, never negative
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EntryKind is the type of a balance-changing event.
type EntryKind string

const (
	EntryTopUp   EntryKind = "TOPUP"
	EntryPayment EntryKind = "PAYMENT"
	EntryRefund  EntryKind = "REFUND"
)

// Entry is an immutable balance-changing event. Amount is signed: top-ups
// and refunds are positive, payments negative. OrderID links payment and
// refund entries to the order that caused them.
type Entry struct {
	ID        string
	AccountID string
	Kind      EntryKind
	Amount    int64 // cents, signed
	OrderID   string
	CreatedAt time.Time
}

// EntryLog is a free-text audit line attached to an entry.
type EntryLog struct {
	ID        string
	EntryID   string
	Message   string
	CreatedAt time.Time
}
