// Package postgres implements storage.Store on pgx. Row locks come from
// SELECT ... FOR UPDATE, lost updates are prevented with single-statement
// arithmetic updates, and every WithTx call is one database transaction.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/domain"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/storage"
)

//go:embed schema.sql
var schema string

type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pgx pool and pings it.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 8
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

// Migrate applies the embedded schema. Idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// WithTx runs fn in a single transaction. A local lock_timeout bounds how
// long a blocked row-lock acquisition can wait before surfacing a
// transient error instead of hanging.
func (s *Store) WithTx(ctx context.Context, fn func(storage.Tx) error) error {
	pgtx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return translate(err)
	}
	defer func() { _ = pgtx.Rollback(ctx) }()

	if _, err := pgtx.Exec(ctx, `SET LOCAL lock_timeout = '3s'`); err != nil {
		return translate(err)
	}
	if err := fn(&tx{q: pgtx}); err != nil {
		return translate(err)
	}
	if err := pgtx.Commit(ctx); err != nil {
		return translate(err)
	}
	return nil
}

type tx struct {
	q pgx.Tx
}

// translate maps lock-wait and deadlock failures to the transient domain
// kind so callers know a retry is safe. Domain errors pass through.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03": // lock_not_available
			return domain.E(domain.KindTransient, domain.CodeLockTimeout, "row lock wait timed out")
		case "40P01": // deadlock_detected
			return domain.E(domain.KindTransient, domain.CodeLockTimeout, "deadlock detected, retry")
		case "40001": // serialization_failure
			return domain.E(domain.KindTransient, domain.CodeStoreUnavailable, "serialization failure, retry")
		}
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}
