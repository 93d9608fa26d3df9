// Package orders orchestrates the order lifecycle: creation with
// all-or-nothing stock reservation, payment that debits the wallet and
// confirms the holds in one transaction, cancellation with compensating
// refund/release, and admin transitions over the fixed status graph.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/domain"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/events"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/inventory"
	kafkax "github.com/Codeclass-SKA/sistem-terdistribusi/internal/kafka"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/model"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/storage"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/wallet"
)

// ItemInput is one requested order line.
type ItemInput struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type Service struct {
	Store          storage.Store
	Producer       *kafkax.Producer // optional
	ServiceName    string
	ReservationTTL time.Duration
	// AllowShippedRefund gates customer cancellation of SHIPPED orders.
	// Pending product-owner confirmation; the admin graph always has the
	// SHIPPED -> REFUNDED edge.
	AllowShippedRefund bool

	now func() time.Time
}

func NewService(store storage.Store, producer *kafkax.Producer, serviceName string, reservationTTL time.Duration, allowShippedRefund bool) *Service {
	if reservationTTL <= 0 {
		reservationTTL = inventory.DefaultReservationTTL
	}
	return &Service{
		Store:              store,
		Producer:           producer,
		ServiceName:        serviceName,
		ReservationTTL:     reservationTTL,
		AllowShippedRefund: allowShippedRefund,
		now:                time.Now,
	}
}

// WithClock overrides the clock; tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create validates the item list, snapshots current prices into the order
// and reserves stock for every line. One failed reservation rolls the
// whole creation back, reservations included.
func (s *Service) Create(ctx context.Context, actor domain.Principal, items []ItemInput, shippingAddress, notes string) (*model.Order, error) {
	if len(items) == 0 {
		return nil, domain.E(domain.KindValidation, domain.CodeEmptyItems, "order must contain at least one item")
	}
	if shippingAddress == "" {
		return nil, domain.E(domain.KindValidation, domain.CodeMissingAddress, "shipping address is required")
	}
	for _, it := range items {
		if it.Qty <= 0 {
			return nil, domain.Ef(domain.KindValidation, domain.CodeInvalidQuantity, "invalid quantity for product %s", it.ProductID)
		}
	}

	now := s.now()
	order := &model.Order{
		ID:              uuid.NewString(),
		AccountID:       actor.ID,
		Status:          model.StatusCreated,
		ShippingAddress: shippingAddress,
		Notes:           notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err := s.Store.WithTx(ctx, func(tx storage.Tx) error {
		var orderItems []model.OrderItem
		var total int64
		for _, it := range items {
			r, err := inventory.Reserve(ctx, tx, it.ProductID, order.ID, it.Qty, now, s.ReservationTTL)
			if err != nil {
				return err
			}
			p, err := tx.Product(ctx, r.ProductID)
			if err != nil {
				return err
			}
			subtotal := p.PriceCents * int64(it.Qty)
			total += subtotal
			orderItems = append(orderItems, model.OrderItem{
				ID:             uuid.NewString(),
				OrderID:        order.ID,
				ProductID:      p.ID,
				ProductName:    p.Name,
				UnitPriceCents: p.PriceCents,
				Qty:            it.Qty,
				SubtotalCents:  subtotal,
			})
		}
		order.TotalCents = total
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		if err := tx.InsertOrderItems(ctx, orderItems); err != nil {
			return err
		}
		return tx.InsertStatusHistory(ctx, &model.OrderStatusHistory{
			ID: uuid.NewString(), OrderID: order.ID,
			To: model.StatusCreated, ActorID: actor.ID,
			Notes: "order created", CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.publishOrder(events.EventOrderCreated, order, "", model.StatusCreated, actor, now)
	return order, nil
}

// ProcessPayment debits the owner's wallet by the order total and confirms
// the order's reservations in one transaction: a debited balance with
// unconfirmed stock (or the reverse) is never observable. A payment that
// fails on an overdue hold commits the hold's expiry separately, so the
// capacity is free as soon as the error returns.
func (s *Service) ProcessPayment(ctx context.Context, actor domain.Principal, orderID string) (*model.Order, error) {
	now := s.now()
	var order *model.Order
	err := s.Store.WithTx(ctx, func(tx storage.Tx) error {
		o, err := s.orderForUpdate(ctx, tx, actor, orderID)
		if err != nil {
			return err
		}
		if o.Status != model.StatusCreated {
			return domain.Ef(domain.KindConflict, domain.CodeInvalidState,
				"cannot pay for order in status %s", o.Status)
		}
		if _, err := wallet.Debit(ctx, tx, o.AccountID, o.ID, o.TotalCents, actor, now); err != nil {
			return err
		}
		if _, err := inventory.ConfirmAll(ctx, tx, o.ID, now); err != nil {
			return err
		}
		if err := s.transition(ctx, tx, o, model.StatusPaid, actor,
			fmt.Sprintf("payment of %d completed", o.TotalCents), now); err != nil {
			return err
		}
		order = o
		return nil
	})
	if domain.CodeOf(err) == domain.CodeReservationExpired {
		if e := s.Store.WithTx(ctx, func(tx storage.Tx) error {
			_, err := inventory.ExpireAll(ctx, tx, orderID, now)
			return err
		}); e != nil {
			log.Printf("expire order %s holds: %v", orderID, e)
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	s.publishOrder(events.EventOrderPaid, order, model.StatusCreated, model.StatusPaid, actor, now)
	return order, nil
}

// Cancel cancels an order. CREATED orders release their holds and become
// CANCELLED; PAID orders are refunded in full and become REFUNDED. Both
// compensating steps run in the same transaction as the status change.
func (s *Service) Cancel(ctx context.Context, actor domain.Principal, orderID, reason string) (*model.Order, error) {
	if reason == "" {
		reason = "customer cancellation"
	}
	now := s.now()
	var (
		order *model.Order
		from  model.OrderStatus
		to    model.OrderStatus
	)
	err := s.Store.WithTx(ctx, func(tx storage.Tx) error {
		o, err := s.orderForUpdate(ctx, tx, actor, orderID)
		if err != nil {
			return err
		}
		from = o.Status
		switch o.Status {
		case model.StatusCreated:
			to = model.StatusCancelled
		case model.StatusPaid:
			to = model.StatusRefunded
		case model.StatusShipped:
			if !s.AllowShippedRefund {
				return domain.Ef(domain.KindConflict, domain.CodeInvalidState,
					"cannot cancel order in status %s", o.Status)
			}
			to = model.StatusRefunded
		default:
			return domain.Ef(domain.KindConflict, domain.CodeInvalidState,
				"cannot cancel order in status %s", o.Status)
		}

		// compensations: free the holds, give the money back
		if _, err := inventory.ReleaseAll(ctx, tx, o.ID, now); err != nil {
			return err
		}
		if to == model.StatusRefunded {
			if _, err := wallet.Refund(ctx, tx, o.AccountID, o.ID, o.TotalCents, actor, now); err != nil {
				return err
			}
		}
		if err := s.transition(ctx, tx, o, to, actor, "cancelled: "+reason, now); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	eventType := events.EventOrderCancelled
	if to == model.StatusRefunded {
		eventType = events.EventOrderRefunded
	}
	s.publishOrder(eventType, order, from, to, actor, now)
	return order, nil
}

// AdminUpdateStatus moves an order along the transition graph. Admin only;
// it records history but performs no money or stock side effects.
func (s *Service) AdminUpdateStatus(ctx context.Context, actor domain.Principal, orderID string, to model.OrderStatus, notes string) (*model.Order, error) {
	if !actor.Admin {
		return nil, domain.E(domain.KindPermission, domain.CodePermissionDenied, "admin capability required")
	}
	if !model.ValidStatus(to) {
		return nil, domain.Ef(domain.KindValidation, domain.CodeInvalidTransition, "unknown status %s", to)
	}
	now := s.now()
	var (
		order *model.Order
		from  model.OrderStatus
	)
	err := s.Store.WithTx(ctx, func(tx storage.Tx) error {
		o, err := s.orderForUpdate(ctx, tx, actor, orderID)
		if err != nil {
			return err
		}
		from = o.Status
		if err := s.transition(ctx, tx, o, to, actor, notes, now); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishOrder(events.EventOrderStatusMoved, order, from, to, actor, now)
	return order, nil
}

// Get returns the order with its items.
func (s *Service) Get(ctx context.Context, actor domain.Principal, orderID string) (*model.Order, []model.OrderItem, error) {
	var (
		order *model.Order
		items []model.OrderItem
	)
	err := s.Store.WithTx(ctx, func(tx storage.Tx) error {
		o, err := tx.Order(ctx, orderID)
		if errors.Is(err, storage.ErrNotFound) {
			return orderNotFound(orderID)
		}
		if err != nil {
			return err
		}
		if !actor.CanActOn(o.AccountID) {
			return domain.E(domain.KindPermission, domain.CodePermissionDenied, "not your order")
		}
		items, err = tx.OrderItems(ctx, o.ID)
		if err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return order, items, nil
}

// List returns the actor's orders, newest first.
func (s *Service) List(ctx context.Context, actor domain.Principal) ([]model.Order, error) {
	var out []model.Order
	err := s.Store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		out, err = tx.OrdersByAccount(ctx, actor.ID)
		return err
	})
	return out, err
}

// History returns the order's status transitions in order.
func (s *Service) History(ctx context.Context, actor domain.Principal, orderID string) ([]model.OrderStatusHistory, error) {
	var out []model.OrderStatusHistory
	err := s.Store.WithTx(ctx, func(tx storage.Tx) error {
		o, err := tx.Order(ctx, orderID)
		if errors.Is(err, storage.ErrNotFound) {
			return orderNotFound(orderID)
		}
		if err != nil {
			return err
		}
		if !actor.CanActOn(o.AccountID) {
			return domain.E(domain.KindPermission, domain.CodePermissionDenied, "not your order")
		}
		out, err = tx.StatusHistory(ctx, orderID)
		return err
	})
	return out, err
}

// orderForUpdate locks the order row and checks ownership.
func (s *Service) orderForUpdate(ctx context.Context, tx storage.Tx, actor domain.Principal, orderID string) (*model.Order, error) {
	o, err := tx.OrderForUpdate(ctx, orderID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, orderNotFound(orderID)
	}
	if err != nil {
		return nil, err
	}
	if !actor.CanActOn(o.AccountID) {
		return nil, domain.E(domain.KindPermission, domain.CodePermissionDenied, "not your order")
	}
	return o, nil
}

// transition validates the edge, applies the guarded status update and
// appends the history row.
func (s *Service) transition(ctx context.Context, tx storage.Tx, o *model.Order, to model.OrderStatus, actor domain.Principal, notes string, now time.Time) error {
	from := o.Status
	if !model.CanTransition(from, to) {
		return domain.Ef(domain.KindConflict, domain.CodeInvalidTransition,
			"transition %s -> %s is not allowed", from, to)
	}
	ok, err := tx.SetOrderStatus(ctx, o.ID, from, to, now)
	if err != nil {
		return err
	}
	if !ok {
		// current status moved under us despite the row lock
		return domain.Ef(domain.KindConflict, domain.CodeInvalidState,
			"order %s is no longer in status %s", o.ID, from)
	}
	o.Status = to
	o.UpdatedAt = now
	return tx.InsertStatusHistory(ctx, &model.OrderStatusHistory{
		ID: uuid.NewString(), OrderID: o.ID,
		From: from, To: to, ActorID: actor.ID,
		Notes: notes, CreatedAt: now,
	})
}

func orderNotFound(orderID string) error {
	return domain.Ef(domain.KindNotFound, domain.CodeOrderNotFound, "order %s not found", orderID)
}

func (s *Service) publishOrder(eventType string, o *model.Order, from, to model.OrderStatus, actor domain.Principal, now time.Time) {
	if s.Producer == nil {
		return
	}
	ev := events.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    now.UTC(),
		Producer:      s.ServiceName,
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(events.OrderStatusPayload{
			OrderID:    o.ID,
			AccountID:  o.AccountID,
			FromStatus: string(from),
			ToStatus:   string(to),
			TotalCents: o.TotalCents,
			ActorID:    actor.ID,
		}),
	}
	s.Producer.Publish(events.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
	)
}
