// Package postgres implements record.Store on a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dzfranklin/gtfsreload/record"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	_ record.Store = (*Store)(nil)
	_ record.Tx    = (*Tx)(nil)
)

// querier is the part of pgx shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Store struct {
	conn
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	cfg := pool.Config().ConnConfig
	logger.Debug("connected to postgres", slog.String("host", cfg.Host), slog.String("database", cfg.Database))
	return &Store{conn: conn{q: pool}, pool: pool, logger: logger}, nil
}

func (s *Store) Begin(ctx context.Context) (record.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &Tx{conn: conn{q: tx}, tx: tx}, nil
}

func (s *Store) Close() error {
	s.logger.Debug("closing postgres pool")
	s.pool.Close()
	return nil
}

type Tx struct {
	conn
	tx pgx.Tx
}

func (t *Tx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

// Rollback is a no-op after Commit.
func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(context.WithoutCancel(ctx))
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

type conn struct {
	q querier
}

func (c conn) Dialect() *record.Dialect {
	return record.Postgres
}

func (c conn) Exec(ctx context.Context, query string, args ...any) error {
	_, err := c.q.Exec(ctx, query, args...)
	return err
}

func (c conn) Query(ctx context.Context, query string, args []any, fn func(row []any) error) error {
	rows, err := c.q.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		row, err := rows.Values()
		if err != nil {
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ExecBatch queues every row on one pgx.Batch, sent in a single round trip.
func (c conn) ExecBatch(ctx context.Context, query string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(query, row...)
	}

	results := c.q.SendBatch(ctx, batch)
	for n := range rows {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("row %d: %w", n, err)
		}
	}
	return results.Close()
}
