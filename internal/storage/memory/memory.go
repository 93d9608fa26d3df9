// Package memory is an in-memory Store for tests and local development.
// A single mutex serializes transactions, which trivially satisfies the
// serializability the postgres store gets from row locks; rollback is a
// snapshot restore.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/model"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/storage"
)

type state struct {
	accounts     map[string]model.Account
	entries      []model.Entry
	entryLogs    []model.EntryLog
	products     map[string]model.Product
	reservations map[string]model.Reservation
	movements    []model.StockMovement
	orders       map[string]model.Order
	orderItems   map[string][]model.OrderItem
	history      []model.OrderStatusHistory
}

func (s *state) clone() state {
	c := state{
		accounts:     make(map[string]model.Account, len(s.accounts)),
		products:     make(map[string]model.Product, len(s.products)),
		reservations: make(map[string]model.Reservation, len(s.reservations)),
		orders:       make(map[string]model.Order, len(s.orders)),
		orderItems:   make(map[string][]model.OrderItem, len(s.orderItems)),
		entries:      append([]model.Entry(nil), s.entries...),
		entryLogs:    append([]model.EntryLog(nil), s.entryLogs...),
		movements:    append([]model.StockMovement(nil), s.movements...),
		history:      append([]model.OrderStatusHistory(nil), s.history...),
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.reservations {
		c.reservations[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.orderItems {
		c.orderItems[k] = append([]model.OrderItem(nil), v...)
	}
	return c
}

// Store implements storage.Store in memory.
type Store struct {
	mu sync.Mutex
	s  state
}

func New() *Store {
	return &Store{s: state{
		accounts:     map[string]model.Account{},
		products:     map[string]model.Product{},
		reservations: map[string]model.Reservation{},
		orders:       map[string]model.Order{},
		orderItems:   map[string][]model.OrderItem{},
	}}
}

// WithTx runs fn under the store mutex. On error the pre-transaction
// snapshot is restored, so partial writes are never observable.
func (m *Store) WithTx(ctx context.Context, fn func(storage.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := m.s.clone()
	if err := fn(&view{s: &m.s}); err != nil {
		m.s = snapshot
		return err
	}
	return nil
}

type view struct{ s *state }

// --- wallet ---

func (v *view) Account(_ context.Context, accountID string) (*model.Account, error) {
	a, ok := v.s.accounts[accountID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &a, nil
}

func (v *view) EnsureAccount(_ context.Context, accountID string, now time.Time) error {
	if _, ok := v.s.accounts[accountID]; ok {
		return nil
	}
	v.s.accounts[accountID] = model.Account{ID: accountID, CreatedAt: now, UpdatedAt: now}
	return nil
}

func (v *view) AddBalance(_ context.Context, accountID string, delta int64, now time.Time) (int64, error) {
	a, ok := v.s.accounts[accountID]
	if !ok {
		return 0, storage.ErrNotFound
	}
	a.Balance += delta
	a.UpdatedAt = now
	v.s.accounts[accountID] = a
	return a.Balance, nil
}

func (v *view) DebitBalance(_ context.Context, accountID string, amount int64, now time.Time) (int64, bool, error) {
	a, ok := v.s.accounts[accountID]
	if !ok {
		return 0, false, storage.ErrNotFound
	}
	if a.Balance < amount {
		return a.Balance, false, nil
	}
	a.Balance -= amount
	a.UpdatedAt = now
	v.s.accounts[accountID] = a
	return a.Balance, true, nil
}

func (v *view) InsertEntry(_ context.Context, e *model.Entry) error {
	v.s.entries = append(v.s.entries, *e)
	return nil
}

func (v *view) InsertEntryLog(_ context.Context, l *model.EntryLog) error {
	v.s.entryLogs = append(v.s.entryLogs, *l)
	return nil
}

func (v *view) EntriesByAccount(_ context.Context, accountID string, limit int) ([]model.Entry, error) {
	var out []model.Entry
	for i := len(v.s.entries) - 1; i >= 0; i-- {
		if v.s.entries[i].AccountID != accountID {
			continue
		}
		out = append(out, v.s.entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// --- stock ---

func (v *view) Product(_ context.Context, productID string) (*model.Product, error) {
	p, ok := v.s.products[productID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &p, nil
}

func (v *view) ProductForUpdate(ctx context.Context, productID string) (*model.Product, error) {
	return v.Product(ctx, productID)
}

func (v *view) Products(_ context.Context) ([]model.Product, error) {
	out := make([]model.Product, 0, len(v.s.products))
	for _, p := range v.s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (v *view) InsertProduct(_ context.Context, p *model.Product) error {
	v.s.products[p.ID] = *p
	return nil
}

func (v *view) AddStock(_ context.Context, productID string, delta int, now time.Time) (int, error) {
	p, ok := v.s.products[productID]
	if !ok {
		return 0, storage.ErrNotFound
	}
	p.Stock += delta
	p.UpdatedAt = now
	v.s.products[productID] = p
	return p.Stock, nil
}

func (v *view) ActiveReservation(_ context.Context, productID, orderID string) (*model.Reservation, error) {
	for _, r := range v.s.reservations {
		if r.ProductID == productID && r.OrderID == orderID && r.State == model.ReservationActive {
			r := r
			return &r, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (v *view) InsertReservation(_ context.Context, r *model.Reservation) error {
	v.s.reservations[r.ID] = *r
	return nil
}

func (v *view) ReservationsByOrder(_ context.Context, orderID string, state model.ReservationState) ([]model.Reservation, error) {
	var out []model.Reservation
	for _, r := range v.s.reservations {
		if r.OrderID == orderID && r.State == state {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *view) SetReservationState(_ context.Context, id string, from, to model.ReservationState) (bool, error) {
	r, ok := v.s.reservations[id]
	if !ok || r.State != from {
		return false, nil
	}
	r.State = to
	v.s.reservations[id] = r
	return true, nil
}

func (v *view) DueReservations(_ context.Context, productID string, now time.Time, limit int) ([]model.Reservation, error) {
	var out []model.Reservation
	for _, r := range v.s.reservations {
		if productID != "" && r.ProductID != productID {
			continue
		}
		if r.Due(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (v *view) InsertMovement(_ context.Context, m *model.StockMovement) error {
	v.s.movements = append(v.s.movements, *m)
	return nil
}

func (v *view) MovementsByProduct(_ context.Context, productID string, limit int) ([]model.StockMovement, error) {
	var out []model.StockMovement
	for i := len(v.s.movements) - 1; i >= 0; i-- {
		if v.s.movements[i].ProductID != productID {
			continue
		}
		out = append(out, v.s.movements[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// --- orders ---

func (v *view) Order(_ context.Context, orderID string) (*model.Order, error) {
	o, ok := v.s.orders[orderID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &o, nil
}

func (v *view) OrderForUpdate(ctx context.Context, orderID string) (*model.Order, error) {
	return v.Order(ctx, orderID)
}

func (v *view) OrdersByAccount(_ context.Context, accountID string) ([]model.Order, error) {
	var out []model.Order
	for _, o := range v.s.orders {
		if o.AccountID == accountID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (v *view) InsertOrder(_ context.Context, o *model.Order) error {
	v.s.orders[o.ID] = *o
	return nil
}

func (v *view) InsertOrderItems(_ context.Context, items []model.OrderItem) error {
	for _, it := range items {
		v.s.orderItems[it.OrderID] = append(v.s.orderItems[it.OrderID], it)
	}
	return nil
}

func (v *view) OrderItems(_ context.Context, orderID string) ([]model.OrderItem, error) {
	return append([]model.OrderItem(nil), v.s.orderItems[orderID]...), nil
}

func (v *view) SetOrderStatus(_ context.Context, orderID string, from, to model.OrderStatus, now time.Time) (bool, error) {
	o, ok := v.s.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = now
	v.s.orders[orderID] = o
	return true, nil
}

func (v *view) InsertStatusHistory(_ context.Context, h *model.OrderStatusHistory) error {
	v.s.history = append(v.s.history, *h)
	return nil
}

func (v *view) StatusHistory(_ context.Context, orderID string) ([]model.OrderStatusHistory, error) {
	var out []model.OrderStatusHistory
	for _, h := range v.s.history {
		if h.OrderID == orderID {
			out = append(out, h)
		}
	}
	return out, nil
}
