package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/model"
)

const orderCols = `id, account_id, status, total_cents, shipping_address, notes, created_at, updated_at`

func (t *tx) Order(ctx context.Context, orderID string) (*model.Order, error) {
	return t.scanOrder(t.q.QueryRow(ctx,
		`SELECT `+orderCols+` FROM orders WHERE id=$1`, orderID))
}

func (t *tx) OrderForUpdate(ctx context.Context, orderID string) (*model.Order, error) {
	return t.scanOrder(t.q.QueryRow(ctx,
		`SELECT `+orderCols+` FROM orders WHERE id=$1 FOR UPDATE`, orderID))
}

func (t *tx) scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	var status string
	err := row.Scan(&o.ID, &o.AccountID, &status, &o.TotalCents, &o.ShippingAddress, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	o.Status = model.OrderStatus(status)
	return &o, nil
}

func (t *tx) OrdersByAccount(ctx context.Context, accountID string) ([]model.Order, error) {
	rows, err := t.q.Query(ctx, `SELECT `+orderCols+`
		FROM orders WHERE account_id=$1 ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Order
	for rows.Next() {
		var o model.Order
		var status string
		if err := rows.Scan(&o.ID, &o.AccountID, &status, &o.TotalCents, &o.ShippingAddress, &o.Notes, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		o.Status = model.OrderStatus(status)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (t *tx) InsertOrder(ctx context.Context, o *model.Order) error {
	_, err := t.q.Exec(ctx, `INSERT INTO orders(id, account_id, status, total_cents, shipping_address, notes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$7)`,
		o.ID, o.AccountID, string(o.Status), o.TotalCents, o.ShippingAddress, o.Notes, o.CreatedAt)
	return err
}

func (t *tx) InsertOrderItems(ctx context.Context, items []model.OrderItem) error {
	for _, it := range items {
		_, err := t.q.Exec(ctx, `INSERT INTO order_items(id, order_id, product_id, product_name, unit_price_cents, qty, subtotal_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			it.ID, it.OrderID, it.ProductID, it.ProductName, it.UnitPriceCents, it.Qty, it.SubtotalCents)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *tx) OrderItems(ctx context.Context, orderID string) ([]model.OrderItem, error) {
	rows, err := t.q.Query(ctx, `SELECT id, order_id, product_id, product_name, unit_price_cents, qty, subtotal_cents
		FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.OrderItem
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.UnitPriceCents, &it.Qty, &it.SubtotalCents); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (t *tx) SetOrderStatus(ctx context.Context, orderID string, from, to model.OrderStatus, now time.Time) (bool, error) {
	ct, err := t.q.Exec(ctx, `UPDATE orders SET status=$3, updated_at=$4 WHERE id=$1 AND status=$2`,
		orderID, string(from), string(to), now)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (t *tx) InsertStatusHistory(ctx context.Context, h *model.OrderStatusHistory) error {
	_, err := t.q.Exec(ctx, `INSERT INTO order_status_history(id, order_id, from_status, to_status, actor_id, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		h.ID, h.OrderID, string(h.From), string(h.To), h.ActorID, h.Notes, h.CreatedAt)
	return err
}

func (t *tx) StatusHistory(ctx context.Context, orderID string) ([]model.OrderStatusHistory, error) {
	rows, err := t.q.Query(ctx, `SELECT id, order_id, from_status, to_status, actor_id, notes, created_at
		FROM order_status_history WHERE order_id=$1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.OrderStatusHistory
	for rows.Next() {
		var h model.OrderStatusHistory
		var from, to string
		if err := rows.Scan(&h.ID, &h.OrderID, &from, &to, &h.ActorID, &h.Notes, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.From, h.To = model.OrderStatus(from), model.OrderStatus(to)
		out = append(out, h)
	}
	return out, rows.Err()
}
