package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/model"
)

const productCols = `id, name, description, price_cents, stock, created_at, updated_at`

func (t *tx) Product(ctx context.Context, productID string) (*model.Product, error) {
	return t.scanProduct(t.q.QueryRow(ctx,
		`SELECT `+productCols+` FROM products WHERE id=$1`, productID))
}

func (t *tx) ProductForUpdate(ctx context.Context, productID string) (*model.Product, error) {
	return t.scanProduct(t.q.QueryRow(ctx,
		`SELECT `+productCols+` FROM products WHERE id=$1 FOR UPDATE`, productID))
}

func (t *tx) scanProduct(row pgx.Row) (*model.Product, error) {
	var p model.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (t *tx) Products(ctx context.Context) ([]model.Product, error) {
	rows, err := t.q.Query(ctx, `SELECT `+productCols+` FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *tx) InsertProduct(ctx context.Context, p *model.Product) error {
	_, err := t.q.Exec(ctx, `INSERT INTO products(id, name, description, price_cents, stock, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$6)`,
		p.ID, p.Name, p.Description, p.PriceCents, p.Stock, p.CreatedAt)
	return err
}

func (t *tx) AddStock(ctx context.Context, productID string, delta int, now time.Time) (int, error) {
	var stock int
	err := t.q.QueryRow(ctx, `UPDATE products
		SET stock = stock + $2, updated_at = $3
		WHERE id = $1
		RETURNING stock`, productID, delta, now).Scan(&stock)
	if err != nil {
		return 0, notFound(err)
	}
	return stock, nil
}

const reservationCols = `id, product_id, order_id, qty, state, expires_at, created_at`

func (t *tx) ActiveReservation(ctx context.Context, productID, orderID string) (*model.Reservation, error) {
	return t.scanReservation(t.q.QueryRow(ctx, `SELECT `+reservationCols+`
		FROM reservations WHERE product_id=$1 AND order_id=$2 AND state='ACTIVE'`,
		productID, orderID))
}

func (t *tx) scanReservation(row pgx.Row) (*model.Reservation, error) {
	var r model.Reservation
	var state string
	err := row.Scan(&r.ID, &r.ProductID, &r.OrderID, &r.Qty, &state, &r.ExpiresAt, &r.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	r.State = model.ReservationState(state)
	return &r, nil
}

func (t *tx) InsertReservation(ctx context.Context, r *model.Reservation) error {
	_, err := t.q.Exec(ctx, `INSERT INTO reservations(id, product_id, order_id, qty, state, expires_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		r.ID, r.ProductID, r.OrderID, r.Qty, string(r.State), r.ExpiresAt, r.CreatedAt)
	return err
}

func (t *tx) ReservationsByOrder(ctx context.Context, orderID string, state model.ReservationState) ([]model.Reservation, error) {
	rows, err := t.q.Query(ctx, `SELECT `+reservationCols+`
		FROM reservations WHERE order_id=$1 AND state=$2 ORDER BY id`, orderID, string(state))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReservations(rows)
}

func (t *tx) SetReservationState(ctx context.Context, id string, from, to model.ReservationState) (bool, error) {
	ct, err := t.q.Exec(ctx, `UPDATE reservations SET state=$3 WHERE id=$1 AND state=$2`,
		id, string(from), string(to))
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (t *tx) DueReservations(ctx context.Context, productID string, now time.Time, limit int) ([]model.Reservation, error) {
	sql := `SELECT ` + reservationCols + ` FROM reservations
		WHERE state='ACTIVE' AND expires_at < $1`
	args := []any{now}
	if productID != "" {
		sql += ` AND product_id = $2`
		args = append(args, productID)
	}
	sql += ` ORDER BY id`
	if limit > 0 {
		sql += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := t.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReservations(rows)
}

func collectReservations(rows pgx.Rows) ([]model.Reservation, error) {
	var out []model.Reservation
	for rows.Next() {
		var r model.Reservation
		var state string
		if err := rows.Scan(&r.ID, &r.ProductID, &r.OrderID, &r.Qty, &state, &r.ExpiresAt, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.State = model.ReservationState(state)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *tx) InsertMovement(ctx context.Context, m *model.StockMovement) error {
	_, err := t.q.Exec(ctx, `INSERT INTO stock_movements(id, product_id, delta, reason, order_id, notes, actor_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		m.ID, m.ProductID, m.Delta, string(m.Reason), m.OrderID, m.Notes, m.ActorID, m.CreatedAt)
	return err
}

func (t *tx) MovementsByProduct(ctx context.Context, productID string, limit int) ([]model.StockMovement, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := t.q.Query(ctx, `SELECT id, product_id, delta, reason, order_id, notes, actor_id, created_at
		FROM stock_movements WHERE product_id=$1 ORDER BY created_at DESC LIMIT $2`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StockMovement
	for rows.Next() {
		var m model.StockMovement
		var reason string
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Delta, &reason, &m.OrderID, &m.Notes, &m.ActorID, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Reason = model.MovementReason(reason)
		out = append(out, m)
	}
	return out, rows.Err()
}
