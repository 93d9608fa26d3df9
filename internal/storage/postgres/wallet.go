package postgres

import (
	"context"
	"time"

	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/model"
)

func (t *tx) Account(ctx context.Context, accountID string) (*model.Account, error) {
	var a model.Account
	err := t.q.QueryRow(ctx, `SELECT id, balance_cents, created_at, updated_at
		FROM accounts WHERE id=$1`, accountID).Scan(&a.ID, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (t *tx) EnsureAccount(ctx context.Context, accountID string, now time.Time) error {
	_, err := t.q.Exec(ctx, `INSERT INTO accounts(id, balance_cents, created_at, updated_at)
		VALUES ($1, 0, $2, $2) ON CONFLICT (id) DO NOTHING`, accountID, now)
	return err
}

func (t *tx) AddBalance(ctx context.Context, accountID string, delta int64, now time.Time) (int64, error) {
	var balance int64
	err := t.q.QueryRow(ctx, `UPDATE accounts
		SET balance_cents = balance_cents + $2, updated_at = $3
		WHERE id = $1
		RETURNING balance_cents`, accountID, delta, now).Scan(&balance)
	if err != nil {
		return 0, notFound(err)
	}
	return balance, nil
}

func (t *tx) DebitBalance(ctx context.Context, accountID string, amount int64, now time.Time) (int64, bool, error) {
	var balance int64
	err := t.q.QueryRow(ctx, `UPDATE accounts
		SET balance_cents = balance_cents - $2, updated_at = $3
		WHERE id = $1 AND balance_cents >= $2
		RETURNING balance_cents`, accountID, amount, now).Scan(&balance)
	if err == nil {
		return balance, true, nil
	}
	// no row hit: either the account is missing or the balance is short
	a, aerr := t.Account(ctx, accountID)
	if aerr != nil {
		return 0, false, aerr
	}
	return a.Balance, false, nil
}

func (t *tx) InsertEntry(ctx context.Context, e *model.Entry) error {
	_, err := t.q.Exec(ctx, `INSERT INTO entries(id, account_id, kind, amount_cents, order_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		e.ID, e.AccountID, string(e.Kind), e.Amount, e.OrderID, e.CreatedAt)
	return err
}

func (t *tx) InsertEntryLog(ctx context.Context, l *model.EntryLog) error {
	_, err := t.q.Exec(ctx, `INSERT INTO entry_logs(id, entry_id, message, created_at)
		VALUES ($1,$2,$3,$4)`, l.ID, l.EntryID, l.Message, l.CreatedAt)
	return err
}

func (t *tx) EntriesByAccount(ctx context.Context, accountID string, limit int) ([]model.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := t.q.Query(ctx, `SELECT id, account_id, kind, amount_cents, order_id, created_at
		FROM entries WHERE account_id=$1 ORDER BY created_at DESC LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Entry
	for rows.Next() {
		var e model.Entry
		var kind string
		if err := rows.Scan(&e.ID, &e.AccountID, &kind, &e.Amount, &e.OrderID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = model.EntryKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}
