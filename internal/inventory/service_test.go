package inventory_test

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
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/storage/memory"
)

var t0 = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

// clock is a settable test clock shared with the service under test.
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

func newService(t *testing.T) (*inventory.Service, *memory.Store, *clock) {
	t.Helper()
	store := memory.New()
	ck := &clock{now: t0}
	svc := inventory.NewService(store, nil, "test", 15*time.Minute).WithClock(ck.Now)
	return svc, store, ck
}

func seedProduct(t *testing.T, svc *inventory.Service, name string, stock int) *model.Product {
	t.Helper()
	p, err := svc.CreateProduct(context.Background(), domain.Principal{ID: "ops", Admin: true}, name, "", 1000, stock)
	require.NoError(t, err)
	return p
}

func TestCreateProduct_AdminOnly(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.CreateProduct(context.Background(), domain.Principal{ID: "alice"}, "widget", "", 1000, 5)
	require.Error(t, err)
	assert.Equal(t, domain.KindPermission, domain.KindOf(err))
}

func TestCreateProduct_RecordsInitialStockMovement(t *testing.T) {
	svc, _, _ := newService(t)
	p := seedProduct(t, svc, "widget", 5)

	ms, err := svc.Movements(context.Background(), p.ID, 0)
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, model.MovementRestock, ms[0].Reason)
	assert.Equal(t, 5, ms[0].Delta)
}

func TestAddStock_IncrementsAndAudits(t *testing.T) {
	svc, _, _ := newService(t)
	p := seedProduct(t, svc, "widget", 5)
	ctx := context.Background()

	total, err := svc.AddStock(ctx, domain.Principal{ID: "ops", Admin: true}, p.ID, 7, "resupply")
	require.NoError(t, err)
	assert.Equal(t, 12, total)

	_, err = svc.AddStock(ctx, domain.Principal{ID: "ops", Admin: true}, p.ID, 0, "")
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, err = svc.AddStock(ctx, domain.Principal{ID: "alice"}, p.ID, 1, "")
	require.Error(t, err)
	assert.Equal(t, domain.KindPermission, domain.KindOf(err))
}

func TestReserve_DecrementsAvailableStock(t *testing.T) {
	svc, _, _ := newService(t)
	p := seedProduct(t, svc, "widget", 10)
	ctx := context.Background()

	r, err := svc.Reserve(ctx, p.ID, "order-1", 6)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationActive, r.State)
	assert.Equal(t, t0.Add(15*time.Minute), r.ExpiresAt)

	got, err := svc.Product(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Stock)
}

func TestReserve_ConcurrentOversellImpossible(t *testing.T) {
	svc, _, _ := newService(t)
	p := seedProduct(t, svc, "widget", 10)
	ctx := context.Background()

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, orderID := range []string{"order-1", "order-2"} {
		wg.Add(1)
		go func(orderID string) {
			defer wg.Done()
			_, err := svc.Reserve(ctx, p.ID, orderID, 6)
			errs <- err
		}(orderID)
	}
	wg.Wait()
	close(errs)

	var failures []error
	for err := range errs {
		if err != nil {
			failures = append(failures, err)
		}
	}
	require.Len(t, failures, 1, "exactly one of two 6-unit reservations over 10 units must fail")
	assert.Equal(t, domain.KindExhausted, domain.KindOf(failures[0]))
	assert.Equal(t, domain.CodeInsufficientStock, domain.CodeOf(failures[0]))

	got, err := svc.Product(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Stock)
}

func TestReserve_DuplicatePerOrderRejected(t *testing.T) {
	svc, _, _ := newService(t)
	p := seedProduct(t, svc, "widget", 10)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, p.ID, "order-1", 2)
	require.NoError(t, err)

	_, err = svc.Reserve(ctx, p.ID, "order-1", 2)
	require.Error(t, err)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
	assert.Equal(t, domain.CodeDuplicateReservation, domain.CodeOf(err))
}

func TestReleaseOrder_RestoresStockAndAllowsReReserve(t *testing.T) {
	svc, _, _ := newService(t)
	p := seedProduct(t, svc, "widget", 10)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, p.ID, "order-1", 10)
	require.NoError(t, err)

	qty, err := svc.ReleaseOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, 10, qty)

	got, err := svc.Product(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Stock)

	// released is terminal, a fresh hold for the same order is allowed
	_, err = svc.Reserve(ctx, p.ID, "order-1", 10)
	require.NoError(t, err)

	// releasing an order with no active holds is a no-op
	qty, err = svc.ReleaseOrder(ctx, "order-2")
	require.NoError(t, err)
	assert.Equal(t, 0, qty)
}

func TestConfirmOrder_KeepsStockCommitted(t *testing.T) {
	svc, _, _ := newService(t)
	p := seedProduct(t, svc, "widget", 10)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, p.ID, "order-1", 4)
	require.NoError(t, err)

	qty, err := svc.ConfirmOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, 4, qty)

	// confirm is a permanent outflow: available stock does not change
	got, err := svc.Product(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, got.Stock)

	// confirmed is terminal: releasing afterwards returns nothing
	released, err := svc.ReleaseOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, 0, released)

	ms, err := svc.Movements(ctx, p.ID, 0)
	require.NoError(t, err)
	require.NotEmpty(t, ms)
	assert.Equal(t, model.MovementConfirm, ms[0].Reason)
	assert.Equal(t, -4, ms[0].Delta)
}

func TestConfirmOrder_NoActiveReservation(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.ConfirmOrder(context.Background(), "order-unknown")
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
	assert.Equal(t, domain.CodeReservationNotFound, domain.CodeOf(err))
}

func TestConfirmOrder_ExpiredReservationRejected(t *testing.T) {
	svc, _, ck := newService(t)
	p := seedProduct(t, svc, "widget", 10)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, p.ID, "order-1", 6)
	require.NoError(t, err)

	ck.Advance(16 * time.Minute)

	_, err = svc.ConfirmOrder(ctx, "order-1")
	require.Error(t, err)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
	assert.Equal(t, domain.CodeReservationExpired, domain.CodeOf(err))

	// the failed confirm committed the expiry on its own, so the
	// capacity is back before any sweep runs
	got, err := svc.Product(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Stock)

	n, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestReserve_LazilyExpiresCompetingHolds(t *testing.T) {
	svc, _, ck := newService(t)
	p := seedProduct(t, svc, "widget", 10)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, p.ID, "order-1", 8)
	require.NoError(t, err)

	// not enough left for another large hold
	_, err = svc.Reserve(ctx, p.ID, "order-2", 8)
	require.Error(t, err)
	assert.Equal(t, domain.CodeInsufficientStock, domain.CodeOf(err))

	// once order-1's hold lapses, the same request succeeds
	ck.Advance(16 * time.Minute)
	_, err = svc.Reserve(ctx, p.ID, "order-2", 8)
	require.NoError(t, err)
}

func TestSweep_ExpiresOverdueHolds(t *testing.T) {
	svc, _, ck := newService(t)
	p1 := seedProduct(t, svc, "widget", 10)
	p2 := seedProduct(t, svc, "gadget", 5)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, p1.ID, "order-1", 3)
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, p2.ID, "order-2", 2)
	require.NoError(t, err)

	// nothing due yet
	n, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	ck.Advance(16 * time.Minute)

	n, err = svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := svc.Product(ctx, p1.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Stock)
	got, err = svc.Product(ctx, p2.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock)

	// sweep is idempotent
	n, err = svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
