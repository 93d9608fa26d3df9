// Package inventory is the stock ledger: product quantities, time-bounded
// reservations and the movement audit trail. All mutations of one product
// happen under its row lock; expiry is evaluated lazily on every path that
// reads a reservation, so correctness never depends on the sweep.
package inventory

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
	kafkax "github.com/Codeclass-SKA/sistem-terdistribusi/internal/kafka"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/model"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/storage"
)

// DefaultReservationTTL is the fixed expiry horizon for new reservations.
const DefaultReservationTTL = 15 * time.Minute

type Service struct {
	Store          storage.Store
	Producer       *kafkax.Producer // optional
	ServiceName    string
	ReservationTTL time.Duration

	now func() time.Time
}

func NewService(store storage.Store, producer *kafkax.Producer, serviceName string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}
	return &Service{Store: store, Producer: producer, ServiceName: serviceName, ReservationTTL: ttl, now: time.Now}
}

// WithClock overrides the clock; tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateProduct registers a product. Admin only.
func (s *Service) CreateProduct(ctx context.Context, actor domain.Principal, name, description string, priceCents int64, stock int) (*model.Product, error) {
	if !actor.Admin {
		return nil, domain.E(domain.KindPermission, domain.CodePermissionDenied, "admin capability required")
	}
	if name == "" {
		return nil, domain.E(domain.KindValidation, domain.CodeInvalidQuantity, "product name required")
	}
	if priceCents <= 0 || stock < 0 {
		return nil, domain.E(domain.KindValidation, domain.CodeInvalidAmount, "price must be positive and stock non-negative")
	}
	now := s.now()
	p := &model.Product{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		PriceCents:  priceCents,
		Stock:       stock,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.Store.WithTx(ctx, func(tx storage.Tx) error {
		if err := tx.InsertProduct(ctx, p); err != nil {
			return err
		}
		if p.Stock == 0 {
			return nil
		}
		return tx.InsertMovement(ctx, &model.StockMovement{
			ID: uuid.NewString(), ProductID: p.ID, Delta: p.Stock,
			Reason: model.MovementRestock, Notes: "initial stock",
			ActorID: actor.ID, CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// AddStock restocks a product with a single atomic arithmetic update.
// Admin only.
func (s *Service) AddStock(ctx context.Context, actor domain.Principal, productID string, qty int, notes string) (int, error) {
	if !actor.Admin {
		return 0, domain.E(domain.KindPermission, domain.CodePermissionDenied, "admin capability required")
	}
	if qty <= 0 {
		return 0, domain.E(domain.KindValidation, domain.CodeInvalidQuantity, "quantity must be positive")
	}
	now := s.now()
	var total int
	err := s.Store.WithTx(ctx, func(tx storage.Tx) error {
		t, err := tx.AddStock(ctx, productID, qty, now)
		if errors.Is(err, storage.ErrNotFound) {
			return productNotFound(productID)
		}
		if err != nil {
			return err
		}
		total = t
		return tx.InsertMovement(ctx, &model.StockMovement{
			ID: uuid.NewString(), ProductID: productID, Delta: qty,
			Reason: model.MovementRestock, Notes: notes,
			ActorID: actor.ID, CreatedAt: now,
		})
	})
	return total, err
}

// Reserve places a hold of qty units for the order, expiring after the
// configured horizon.
func (s *Service) Reserve(ctx context.Context, productID, orderID string, qty int) (*model.Reservation, error) {
	if qty <= 0 {
		return nil, domain.E(domain.KindValidation, domain.CodeInvalidQuantity, "quantity must be positive")
	}
	if orderID == "" {
		return nil, domain.E(domain.KindValidation, domain.CodeInvalidQuantity, "order id required")
	}
	now := s.now()
	var r *model.Reservation
	err := s.Store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		r, err = Reserve(ctx, tx, productID, orderID, qty, now, s.ReservationTTL)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publishStock(events.EventStockReserved, r.ProductID, r.OrderID, r.Qty, r.ID, now)
	return r, nil
}

// ConfirmOrder confirms every ACTIVE reservation of the order. When the
// confirm fails because a hold is overdue, the expiry is committed in its
// own transaction before the error returns, so the capacity is free
// immediately rather than on the next reservation or sweep.
func (s *Service) ConfirmOrder(ctx context.Context, orderID string) (int, error) {
	now := s.now()
	var confirmed []model.Reservation
	err := s.Store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		confirmed, err = ConfirmAll(ctx, tx, orderID, now)
		return err
	})
	if domain.CodeOf(err) == domain.CodeReservationExpired {
		s.expireOrder(ctx, orderID, now)
		return 0, err
	}
	if err != nil {
		return 0, err
	}
	qty := 0
	for _, r := range confirmed {
		qty += r.Qty
		s.publishStock(events.EventStockConfirmed, r.ProductID, r.OrderID, r.Qty, r.ID, now)
	}
	return qty, nil
}

// expireOrder commits the expiry of the order's overdue holds in a fresh
// transaction and publishes the expiry events. Best effort: the holds stay
// ACTIVE-and-due on failure and the sweep picks them up.
func (s *Service) expireOrder(ctx context.Context, orderID string, now time.Time) {
	var expired []model.Reservation
	err := s.Store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		expired, err = ExpireAll(ctx, tx, orderID, now)
		return err
	})
	if err != nil {
		log.Printf("expire order %s holds: %v", orderID, err)
		return
	}
	for _, r := range expired {
		s.publishStock(events.EventStockExpired, r.ProductID, r.OrderID, r.Qty, r.ID, now)
	}
}

// ReleaseOrder returns the order's ACTIVE holds to available stock.
// Releasing an order with only terminal reservations is a no-op.
func (s *Service) ReleaseOrder(ctx context.Context, orderID string) (int, error) {
	now := s.now()
	var released []model.Reservation
	err := s.Store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		released, err = ReleaseAll(ctx, tx, orderID, now)
		return err
	})
	if err != nil {
		return 0, err
	}
	qty := 0
	for _, r := range released {
		qty += r.Qty
		s.publishStock(events.EventStockReleased, r.ProductID, r.OrderID, r.Qty, r.ID, now)
	}
	return qty, nil
}

// Sweep batch-expires overdue reservations. The lazy per-read expiry keeps
// the ledger correct even if this never runs.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	var expired []model.Reservation
	err := s.Store.WithTx(ctx, func(tx storage.Tx) error {
		due, err := tx.DueReservations(ctx, "", now, 200)
		if err != nil {
			return err
		}
		for _, r := range due {
			// lock the product row before touching its stock
			if _, err := tx.ProductForUpdate(ctx, r.ProductID); err != nil {
				return err
			}
			ok, err := expire(ctx, tx, r, now)
			if err != nil {
				return err
			}
			if ok {
				expired = append(expired, r)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, r := range expired {
		s.publishStock(events.EventStockExpired, r.ProductID, r.OrderID, r.Qty, r.ID, now)
	}
	return len(expired), nil
}

// RunSweeper calls Sweep on a fixed interval until the context is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				log.Printf("sweep: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("sweep: expired %d reservations", n)
			}
		}
	}
}

func (s *Service) Products(ctx context.Context) ([]model.Product, error) {
	var out []model.Product
	err := s.Store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		out, err = tx.Products(ctx)
		return err
	})
	return out, err
}

func (s *Service) Product(ctx context.Context, productID string) (*model.Product, error) {
	var p *model.Product
	err := s.Store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		p, err = tx.Product(ctx, productID)
		if errors.Is(err, storage.ErrNotFound) {
			return productNotFound(productID)
		}
		return err
	})
	return p, err
}

func (s *Service) Movements(ctx context.Context, productID string, limit int) ([]model.StockMovement, error) {
	var out []model.StockMovement
	err := s.Store.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.Product(ctx, productID); errors.Is(err, storage.ErrNotFound) {
			return productNotFound(productID)
		} else if err != nil {
			return err
		}
		var err error
		out, err = tx.MovementsByProduct(ctx, productID, limit)
		return err
	})
	return out, err
}

func (s *Service) publishStock(eventType, productID, orderID string, qty int, reservationID string, now time.Time) {
	if s.Producer == nil {
		return
	}
	ev := events.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    now.UTC(),
		Producer:      s.ServiceName,
		CorrelationID: orderID,
		Payload: kafkax.MustMarshal(events.StockPayload{
			ProductID: productID, OrderID: orderID, Qty: qty, ReservationID: reservationID,
		}),
	}
	s.Producer.Publish(events.PartitionKey(productID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
	)
}

func productNotFound(productID string) error {
	return domain.Ef(domain.KindNotFound, domain.CodeProductNotFound, "product %s not found", productID)
}

// --- transaction-level operations, shared with the order workflow ---

// Reserve creates an ACTIVE hold inside the caller's transaction. The
// product row lock serializes racing reservations; overdue holds on the
// product are expired first so they free capacity before the check.
func Reserve(ctx context.Context, tx storage.Tx, productID, orderID string, qty int, now time.Time, ttl time.Duration) (*model.Reservation, error) {
	p, err := tx.ProductForUpdate(ctx, productID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, productNotFound(productID)
	}
	if err != nil {
		return nil, err
	}

	stock := p.Stock
	due, err := tx.DueReservations(ctx, productID, now, 0)
	if err != nil {
		return nil, err
	}
	for _, r := range due {
		ok, err := expire(ctx, tx, r, now)
		if err != nil {
			return nil, err
		}
		if ok {
			stock += r.Qty
		}
	}

	if _, err := tx.ActiveReservation(ctx, productID, orderID); err == nil {
		return nil, domain.Ef(domain.KindConflict, domain.CodeDuplicateReservation,
			"order %s already holds a reservation for product %s", orderID, productID)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	if stock < qty {
		return nil, domain.Ef(domain.KindExhausted, domain.CodeInsufficientStock,
			"insufficient stock for product %s: required %d, available %d", productID, qty, stock)
	}
	if _, err := tx.AddStock(ctx, productID, -qty, now); err != nil {
		return nil, err
	}

	r := &model.Reservation{
		ID:        uuid.NewString(),
		ProductID: productID,
		OrderID:   orderID,
		Qty:       qty,
		State:     model.ReservationActive,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := tx.InsertReservation(ctx, r); err != nil {
		return nil, err
	}
	err = tx.InsertMovement(ctx, &model.StockMovement{
		ID: uuid.NewString(), ProductID: productID, Delta: -qty,
		Reason: model.MovementReserve, OrderID: orderID,
		Notes: fmt.Sprintf("reserved for order %s", orderID), CreatedAt: now,
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ConfirmAll transitions the order's ACTIVE reservations to CONFIRMED
// inside the caller's transaction. Any overdue hold fails the confirm with
// ReservationExpired; the rollback also undoes the lazy expiry, so callers
// that want the capacity freed right away must commit ExpireAll in a
// separate transaction after the failure.
func ConfirmAll(ctx context.Context, tx storage.Tx, orderID string, now time.Time) ([]model.Reservation, error) {
	active, err := tx.ReservationsByOrder(ctx, orderID, model.ReservationActive)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, domain.Ef(domain.KindNotFound, domain.CodeReservationNotFound,
			"no active reservation for order %s", orderID)
	}

	expiredAny := false
	for _, r := range active {
		if !r.Due(now) {
			continue
		}
		if _, err := tx.ProductForUpdate(ctx, r.ProductID); err != nil {
			return nil, err
		}
		if _, err := expire(ctx, tx, r, now); err != nil {
			return nil, err
		}
		expiredAny = true
	}
	if expiredAny {
		return nil, domain.Ef(domain.KindConflict, domain.CodeReservationExpired,
			"reservation for order %s expired", orderID)
	}

	var confirmed []model.Reservation
	for _, r := range active {
		ok, err := tx.SetReservationState(ctx, r.ID, model.ReservationActive, model.ReservationConfirmed)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		err = tx.InsertMovement(ctx, &model.StockMovement{
			ID: uuid.NewString(), ProductID: r.ProductID, Delta: -r.Qty,
			Reason: model.MovementConfirm, OrderID: orderID,
			Notes: fmt.Sprintf("confirmed sale for order %s", orderID), CreatedAt: now,
		})
		if err != nil {
			return nil, err
		}
		r.State = model.ReservationConfirmed
		confirmed = append(confirmed, r)
	}
	return confirmed, nil
}

// ExpireAll expires the order's overdue ACTIVE holds inside the caller's
// transaction, freeing their capacity. Holds not yet due are untouched.
func ExpireAll(ctx context.Context, tx storage.Tx, orderID string, now time.Time) ([]model.Reservation, error) {
	active, err := tx.ReservationsByOrder(ctx, orderID, model.ReservationActive)
	if err != nil {
		return nil, err
	}

	var expired []model.Reservation
	for _, r := range active {
		if !r.Due(now) {
			continue
		}
		if _, err := tx.ProductForUpdate(ctx, r.ProductID); err != nil {
			return nil, err
		}
		ok, err := expire(ctx, tx, r, now)
		if err != nil {
			return nil, err
		}
		if ok {
			r.State = model.ReservationExpired
			expired = append(expired, r)
		}
	}
	return expired, nil
}

// ReleaseAll returns the order's ACTIVE holds to available stock inside
// the caller's transaction. No ACTIVE holds is not an error.
func ReleaseAll(ctx context.Context, tx storage.Tx, orderID string, now time.Time) ([]model.Reservation, error) {
	active, err := tx.ReservationsByOrder(ctx, orderID, model.ReservationActive)
	if err != nil {
		return nil, err
	}

	var released []model.Reservation
	for _, r := range active {
		if _, err := tx.ProductForUpdate(ctx, r.ProductID); err != nil {
			return nil, err
		}
		if r.Due(now) {
			// past expiry: record the truth, the capacity comes back either way
			if _, err := expire(ctx, tx, r, now); err != nil {
				return nil, err
			}
			continue
		}
		ok, err := tx.SetReservationState(ctx, r.ID, model.ReservationActive, model.ReservationReleased)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if _, err := tx.AddStock(ctx, r.ProductID, r.Qty, now); err != nil {
			return nil, err
		}
		err = tx.InsertMovement(ctx, &model.StockMovement{
			ID: uuid.NewString(), ProductID: r.ProductID, Delta: r.Qty,
			Reason: model.MovementRelease, OrderID: orderID,
			Notes: fmt.Sprintf("released reservation for order %s", orderID), CreatedAt: now,
		})
		if err != nil {
			return nil, err
		}
		r.State = model.ReservationReleased
		released = append(released, r)
	}
	return released, nil
}

// expire transitions one overdue ACTIVE reservation to EXPIRED and frees
// its capacity. The caller must hold the product row lock. Returns false
// if someone else already moved the row to a terminal state.
func expire(ctx context.Context, tx storage.Tx, r model.Reservation, now time.Time) (bool, error) {
	ok, err := tx.SetReservationState(ctx, r.ID, model.ReservationActive, model.ReservationExpired)
	if err != nil || !ok {
		return false, err
	}
	if _, err := tx.AddStock(ctx, r.ProductID, r.Qty, now); err != nil {
		return false, err
	}
	err = tx.InsertMovement(ctx, &model.StockMovement{
		ID: uuid.NewString(), ProductID: r.ProductID, Delta: r.Qty,
		Reason: model.MovementExpire, OrderID: r.OrderID,
		Notes: fmt.Sprintf("expired reservation for order %s", r.OrderID), CreatedAt: now,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
