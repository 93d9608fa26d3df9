// Package wallet is the money ledger: account balances mutated only
// through balance-changing entries, each with an audit log line.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/domain"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/events"
	kafkax "github.com/Codeclass-SKA/sistem-terdistribusi/internal/kafka"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/model"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/storage"
)

type Service struct {
	Store       storage.Store
	Producer    *kafkax.Producer // optional
	ServiceName string

	now func() time.Time
}

func NewService(store storage.Store, producer *kafkax.Producer, serviceName string) *Service {
	return &Service{Store: store, Producer: producer, ServiceName: serviceName, now: time.Now}
}

// WithClock overrides the clock; tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// TopUp credits amount to the account, creating it on first use. The
// balance mutation is a single atomic arithmetic update paired with a
// TopUp entry and its audit log line in one transaction.
func (s *Service) TopUp(ctx context.Context, actor domain.Principal, accountID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.E(domain.KindValidation, domain.CodeInvalidAmount, "top-up amount must be positive")
	}
	if !actor.CanActOn(accountID) {
		return 0, domain.E(domain.KindPermission, domain.CodePermissionDenied, "cannot top up another account")
	}

	now := s.now()
	var balance int64
	err := s.Store.WithTx(ctx, func(tx storage.Tx) error {
		if err := tx.EnsureAccount(ctx, accountID, now); err != nil {
			return err
		}
		b, err := tx.AddBalance(ctx, accountID, amount, now)
		if err != nil {
			return err
		}
		balance = b
		_, err = record(ctx, tx, &model.Entry{
			AccountID: accountID,
			Kind:      model.EntryTopUp,
			Amount:    amount,
			CreatedAt: now,
		}, fmt.Sprintf("top-up of %d for account %s by %s", amount, accountID, actor.ID))
		return err
	})
	if err != nil {
		return 0, err
	}

	s.publishTopUp(accountID, amount, balance, now)
	return balance, nil
}

// Balance returns the current balance.
func (s *Service) Balance(ctx context.Context, actor domain.Principal, accountID string) (int64, error) {
	if !actor.CanActOn(accountID) {
		return 0, domain.E(domain.KindPermission, domain.CodePermissionDenied, "cannot read another account")
	}
	var balance int64
	err := s.Store.WithTx(ctx, func(tx storage.Tx) error {
		a, err := tx.Account(ctx, accountID)
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Ef(domain.KindNotFound, domain.CodeAccountNotFound, "account %s not found", accountID)
		}
		if err != nil {
			return err
		}
		balance = a.Balance
		return nil
	})
	return balance, err
}

// Entries returns the most recent balance-changing events.
func (s *Service) Entries(ctx context.Context, actor domain.Principal, accountID string, limit int) ([]model.Entry, error) {
	if !actor.CanActOn(accountID) {
		return nil, domain.E(domain.KindPermission, domain.CodePermissionDenied, "cannot read another account")
	}
	var out []model.Entry
	err := s.Store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		out, err = tx.EntriesByAccount(ctx, accountID, limit)
		return err
	})
	return out, err
}

// Debit charges the account for an order inside the caller's transaction.
// The conditional atomic write guarantees the balance never goes negative
// even under concurrent debits.
func Debit(ctx context.Context, tx storage.Tx, accountID, orderID string, amount int64, actor domain.Principal, now time.Time) (int64, error) {
	balance, ok, err := tx.DebitBalance(ctx, accountID, amount, now)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, domain.Ef(domain.KindNotFound, domain.CodeAccountNotFound, "account %s not found", accountID)
	}
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, domain.Ef(domain.KindExhausted, domain.CodeInsufficientFunds,
			"insufficient balance: required %d, available %d", amount, balance)
	}
	_, err = record(ctx, tx, &model.Entry{
		AccountID: accountID,
		Kind:      model.EntryPayment,
		Amount:    -amount,
		OrderID:   orderID,
		CreatedAt: now,
	}, fmt.Sprintf("payment of %d for order %s by %s", amount, orderID, actor.ID))
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Refund credits the full amount back to the account inside the caller's
// transaction, the compensating action for a captured payment.
func Refund(ctx context.Context, tx storage.Tx, accountID, orderID string, amount int64, actor domain.Principal, now time.Time) (int64, error) {
	balance, err := tx.AddBalance(ctx, accountID, amount, now)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, domain.Ef(domain.KindNotFound, domain.CodeAccountNotFound, "account %s not found", accountID)
	}
	if err != nil {
		return 0, err
	}
	_, err = record(ctx, tx, &model.Entry{
		AccountID: accountID,
		Kind:      model.EntryRefund,
		Amount:    amount,
		OrderID:   orderID,
		CreatedAt: now,
	}, fmt.Sprintf("refund of %d for order %s by %s", amount, orderID, actor.ID))
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// record writes the entry and its audit log line.
func record(ctx context.Context, tx storage.Tx, e *model.Entry, message string) (*model.Entry, error) {
	e.ID = uuid.NewString()
	if err := tx.InsertEntry(ctx, e); err != nil {
		return nil, err
	}
	err := tx.InsertEntryLog(ctx, &model.EntryLog{
		ID:        uuid.NewString(),
		EntryID:   e.ID,
		Message:   message,
		CreatedAt: e.CreatedAt,
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) publishTopUp(accountID string, amount, balance int64, now time.Time) {
	if s.Producer == nil {
		return
	}
	ev := events.Envelope{
		EventID:       uuid.NewString(),
		EventType:     events.EventWalletTopUp,
		EventVersion:  1,
		OccurredAt:    now.UTC(),
		Producer:      s.ServiceName,
		CorrelationID: accountID,
		Payload: kafkax.MustMarshal(events.TopUpPayload{
			AccountID: accountID, AmountCents: amount, Balance: balance,
		}),
	}
	s.Producer.Publish(events.PartitionKey(accountID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(ev.EventType)},
	)
}
