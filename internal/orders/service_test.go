package orders_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/domain"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/inventory"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/model"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/orders"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/storage/memory"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/wallet"
)

var t0 = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// world bundles the three services over one shared store, the way the api
// binary wires them.
type world struct {
	store     *memory.Store
	clock     *clock
	wallet    *wallet.Service
	inventory *inventory.Service
	orders    *orders.Service
}

func newWorld(t *testing.T) *world {
	t.Helper()
	store := memory.New()
	ck := &clock{now: t0}
	return &world{
		store:     store,
		clock:     ck,
		wallet:    wallet.NewService(store, nil, "test").WithClock(ck.Now),
		inventory: inventory.NewService(store, nil, "test", 15*time.Minute).WithClock(ck.Now),
		orders:    orders.NewService(store, nil, "test", 15*time.Minute, false).WithClock(ck.Now),
	}
}

var (
	alice = domain.Principal{ID: "alice"}
	bob   = domain.Principal{ID: "bob"}
	ops   = domain.Principal{ID: "ops", Admin: true}
)

func (w *world) seedProduct(t *testing.T, name string, priceCents int64, stock int) *model.Product {
	t.Helper()
	p, err := w.inventory.CreateProduct(context.Background(), ops, name, "", priceCents, stock)
	require.NoError(t, err)
	return p
}

func (w *world) seedBalance(t *testing.T, accountID string, amount int64) {
	t.Helper()
	_, err := w.wallet.TopUp(context.Background(), ops, accountID, amount)
	require.NoError(t, err)
}

func TestCreate_SnapshotsPricesAndReservesStock(t *testing.T) {
	w := newWorld(t)
	widget := w.seedProduct(t, "widget", 1500, 10)
	gadget := w.seedProduct(t, "gadget", 250, 4)
	ctx := context.Background()

	order, err := w.orders.Create(ctx, alice, []orders.ItemInput{
		{ProductID: widget.ID, Qty: 2},
		{ProductID: gadget.ID, Qty: 4},
	}, "1 Main St", "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCreated, order.Status)
	assert.Equal(t, int64(2*1500+4*250), order.TotalCents)

	got, items, err := w.orders.Get(ctx, alice, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
	require.Len(t, items, 2)
	assert.Equal(t, "widget", items[0].ProductName)
	assert.Equal(t, int64(1500), items[0].UnitPriceCents)
	assert.Equal(t, int64(3000), items[0].SubtotalCents)

	p, err := w.inventory.Product(ctx, widget.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, p.Stock)
	p, err = w.inventory.Product(ctx, gadget.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stock)

	history, err := w.orders.History(ctx, alice, order.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.StatusCreated, history[0].To)
}

func TestCreate_Validation(t *testing.T) {
	w := newWorld(t)
	widget := w.seedProduct(t, "widget", 1500, 10)
	ctx := context.Background()

	_, err := w.orders.Create(ctx, alice, nil, "1 Main St", "")
	require.Error(t, err)
	assert.Equal(t, domain.CodeEmptyItems, domain.CodeOf(err))

	_, err = w.orders.Create(ctx, alice, []orders.ItemInput{{ProductID: widget.ID, Qty: 1}}, "", "")
	require.Error(t, err)
	assert.Equal(t, domain.CodeMissingAddress, domain.CodeOf(err))

	_, err = w.orders.Create(ctx, alice, []orders.ItemInput{{ProductID: widget.ID, Qty: 0}}, "1 Main St", "")
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidQuantity, domain.CodeOf(err))
}

func TestCreate_OneShortLineRollsBackAllHolds(t *testing.T) {
	w := newWorld(t)
	widget := w.seedProduct(t, "widget", 1500, 10)
	gadget := w.seedProduct(t, "gadget", 250, 1)
	ctx := context.Background()

	_, err := w.orders.Create(ctx, alice, []orders.ItemInput{
		{ProductID: widget.ID, Qty: 2},
		{ProductID: gadget.ID, Qty: 3},
	}, "1 Main St", "")
	require.Error(t, err)
	assert.Equal(t, domain.CodeInsufficientStock, domain.CodeOf(err))

	// the widget hold from the first line must not survive
	p, err := w.inventory.Product(ctx, widget.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, p.Stock)
}

func TestProcessPayment_DebitsAndConfirmsAtomically(t *testing.T) {
	w := newWorld(t)
	widget := w.seedProduct(t, "widget", 1500, 10)
	w.seedBalance(t, "alice", 5000)
	ctx := context.Background()

	order, err := w.orders.Create(ctx, alice, []orders.ItemInput{{ProductID: widget.ID, Qty: 2}}, "1 Main St", "")
	require.NoError(t, err)

	paid, err := w.orders.ProcessPayment(ctx, alice, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaid, paid.Status)

	balance, err := w.wallet.Balance(ctx, alice, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), balance)

	// holds are confirmed, so a release returns nothing
	released, err := w.inventory.ReleaseOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, released)

	// paying again is an invalid-state conflict
	_, err = w.orders.ProcessPayment(ctx, alice, order.ID)
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidState, domain.CodeOf(err))
}

func TestProcessPayment_InsufficientFundsLeavesEverythingIntact(t *testing.T) {
	w := newWorld(t)
	widget := w.seedProduct(t, "widget", 1500, 10)
	w.seedBalance(t, "alice", 1000)
	ctx := context.Background()

	order, err := w.orders.Create(ctx, alice, []orders.ItemInput{{ProductID: widget.ID, Qty: 2}}, "1 Main St", "")
	require.NoError(t, err)

	_, err = w.orders.ProcessPayment(ctx, alice, order.ID)
	require.Error(t, err)
	assert.Equal(t, domain.KindExhausted, domain.KindOf(err))
	assert.Equal(t, domain.CodeInsufficientFunds, domain.CodeOf(err))

	// order still CREATED, balance untouched, holds still active
	got, _, err := w.orders.Get(ctx, alice, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCreated, got.Status)

	balance, err := w.wallet.Balance(ctx, alice, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)

	released, err := w.inventory.ReleaseOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, released)
}

func TestProcessPayment_ExpiredHoldFailsPayment(t *testing.T) {
	w := newWorld(t)
	widget := w.seedProduct(t, "widget", 1500, 10)
	w.seedBalance(t, "alice", 5000)
	ctx := context.Background()

	order, err := w.orders.Create(ctx, alice, []orders.ItemInput{{ProductID: widget.ID, Qty: 2}}, "1 Main St", "")
	require.NoError(t, err)

	w.clock.Advance(16 * time.Minute)

	_, err = w.orders.ProcessPayment(ctx, alice, order.ID)
	require.Error(t, err)
	assert.Equal(t, domain.CodeReservationExpired, domain.CodeOf(err))

	// the rolled-back payment never touched the wallet
	balance, err := w.wallet.Balance(ctx, alice, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), balance)

	// the failed payment expired the hold, so the capacity is back
	p, err := w.inventory.Product(ctx, widget.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, p.Stock)

	// nothing left for the sweep
	n, err := w.inventory.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCancel_CreatedOrderReleasesHolds(t *testing.T) {
	w := newWorld(t)
	widget := w.seedProduct(t, "widget", 1500, 10)
	ctx := context.Background()

	order, err := w.orders.Create(ctx, alice, []orders.ItemInput{{ProductID: widget.ID, Qty: 3}}, "1 Main St", "")
	require.NoError(t, err)

	cancelled, err := w.orders.Cancel(ctx, alice, order.ID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)

	p, err := w.inventory.Product(ctx, widget.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, p.Stock)
}

func TestCancel_PaidOrderRefundsInFull(t *testing.T) {
	w := newWorld(t)
	widget := w.seedProduct(t, "widget", 1500, 10)
	w.seedBalance(t, "alice", 5000)
	ctx := context.Background()

	order, err := w.orders.Create(ctx, alice, []orders.ItemInput{{ProductID: widget.ID, Qty: 2}}, "1 Main St", "")
	require.NoError(t, err)
	_, err = w.orders.ProcessPayment(ctx, alice, order.ID)
	require.NoError(t, err)

	refunded, err := w.orders.Cancel(ctx, alice, order.ID, "defective")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRefunded, refunded.Status)

	balance, err := w.wallet.Balance(ctx, alice, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), balance)

	history, err := w.orders.History(ctx, alice, order.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, model.StatusPaid, history[2].From)
	assert.Equal(t, model.StatusRefunded, history[2].To)
}

func TestCancel_ShippedOrderGatedByConfig(t *testing.T) {
	w := newWorld(t)
	widget := w.seedProduct(t, "widget", 1500, 10)
	w.seedBalance(t, "alice", 5000)
	ctx := context.Background()

	order, err := w.orders.Create(ctx, alice, []orders.ItemInput{{ProductID: widget.ID, Qty: 2}}, "1 Main St", "")
	require.NoError(t, err)
	_, err = w.orders.ProcessPayment(ctx, alice, order.ID)
	require.NoError(t, err)
	_, err = w.orders.AdminUpdateStatus(ctx, ops, order.ID, model.StatusShipped, "on the truck")
	require.NoError(t, err)

	_, err = w.orders.Cancel(ctx, alice, order.ID, "too late")
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidState, domain.CodeOf(err))

	// same store, refunds for shipped orders switched on
	w.orders.AllowShippedRefund = true
	refunded, err := w.orders.Cancel(ctx, alice, order.ID, "approved return")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRefunded, refunded.Status)

	balance, err := w.wallet.Balance(ctx, alice, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), balance)
}

func TestCancel_TerminalOrderRejected(t *testing.T) {
	w := newWorld(t)
	widget := w.seedProduct(t, "widget", 1500, 10)
	ctx := context.Background()

	order, err := w.orders.Create(ctx, alice, []orders.ItemInput{{ProductID: widget.ID, Qty: 1}}, "1 Main St", "")
	require.NoError(t, err)
	_, err = w.orders.Cancel(ctx, alice, order.ID, "")
	require.NoError(t, err)

	_, err = w.orders.Cancel(ctx, alice, order.ID, "again")
	require.Error(t, err)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
	assert.Equal(t, domain.CodeInvalidState, domain.CodeOf(err))
}

func TestAdminUpdateStatus_EnforcesGraphAndRole(t *testing.T) {
	w := newWorld(t)
	widget := w.seedProduct(t, "widget", 1500, 10)
	w.seedBalance(t, "alice", 5000)
	ctx := context.Background()

	order, err := w.orders.Create(ctx, alice, []orders.ItemInput{{ProductID: widget.ID, Qty: 1}}, "1 Main St", "")
	require.NoError(t, err)

	_, err = w.orders.AdminUpdateStatus(ctx, alice, order.ID, model.StatusShipped, "")
	require.Error(t, err)
	assert.Equal(t, domain.KindPermission, domain.KindOf(err))

	// CREATED -> SHIPPED is not an edge
	_, err = w.orders.AdminUpdateStatus(ctx, ops, order.ID, model.StatusShipped, "")
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidTransition, domain.CodeOf(err))

	_, err = w.orders.AdminUpdateStatus(ctx, ops, order.ID, "TELEPORTED", "")
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, err = w.orders.ProcessPayment(ctx, alice, order.ID)
	require.NoError(t, err)

	moved, err := w.orders.AdminUpdateStatus(ctx, ops, order.ID, model.StatusShipped, "on the truck")
	require.NoError(t, err)
	assert.Equal(t, model.StatusShipped, moved.Status)
	moved, err = w.orders.AdminUpdateStatus(ctx, ops, order.ID, model.StatusDelivered, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDelivered, moved.Status)

	history, err := w.orders.History(ctx, alice, order.ID)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestOrderAccess_OwnerOnly(t *testing.T) {
	w := newWorld(t)
	widget := w.seedProduct(t, "widget", 1500, 10)
	ctx := context.Background()

	order, err := w.orders.Create(ctx, alice, []orders.ItemInput{{ProductID: widget.ID, Qty: 1}}, "1 Main St", "")
	require.NoError(t, err)

	_, _, err = w.orders.Get(ctx, bob, order.ID)
	require.Error(t, err)
	assert.Equal(t, domain.KindPermission, domain.KindOf(err))

	_, err = w.orders.History(ctx, bob, order.ID)
	require.Error(t, err)
	assert.Equal(t, domain.KindPermission, domain.KindOf(err))

	_, err = w.orders.Cancel(ctx, bob, order.ID, "")
	require.Error(t, err)
	assert.Equal(t, domain.KindPermission, domain.KindOf(err))

	// admins see everything
	_, _, err = w.orders.Get(ctx, ops, order.ID)
	require.NoError(t, err)

	list, err := w.orders.List(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestGet_UnknownOrder(t *testing.T) {
	w := newWorld(t)

	_, _, err := w.orders.Get(context.Background(), alice, "nope")
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
	assert.Equal(t, domain.CodeOrderNotFound, domain.CodeOf(err))
}
