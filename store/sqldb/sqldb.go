// Package sqldb implements record.Store on database/sql, for drivers such as
// modernc.org/sqlite.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dzfranklin/gtfsreload/record"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

var (
	_ record.Store = (*Store)(nil)
	_ record.Tx    = (*Tx)(nil)
)

// execer is the part of database/sql shared by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

type Store struct {
	conn
	db     *sql.DB
	logger *slog.Logger
}

// Open opens dsn with the named database/sql driver. For the modernc
// "sqlite" driver foreign key enforcement is switched on through the DSN.
func Open(driverName, dsn string, dialect *record.Dialect, logger *slog.Logger) (*Store, error) {
	if driverName == "sqlite" {
		dsn = withForeignKeys(dsn)
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	return New(db, dialect, logger), nil
}

// New wraps an existing handle. The pool is limited to one connection so a
// load holds exactly one connection for its duration.
func New(db *sql.DB, dialect *record.Dialect, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	db.SetMaxOpenConns(1)
	return &Store{conn: conn{q: db, dialect: dialect}, db: db, logger: logger}
}

func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}

func (s *Store) Begin(ctx context.Context) (record.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &Tx{conn: conn{q: tx, dialect: s.dialect}, tx: tx}, nil
}

func (s *Store) Close() error {
	s.logger.Debug("closing database connection")
	return s.db.Close()
}

type Tx struct {
	conn
	tx *sql.Tx
}

func (t *Tx) Commit(context.Context) error {
	return t.tx.Commit()
}

// Rollback is a no-op after Commit.
func (t *Tx) Rollback(context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

type conn struct {
	q       execer
	dialect *record.Dialect
}

func (c conn) Dialect() *record.Dialect {
	return c.dialect
}

func (c conn) Exec(ctx context.Context, query string, args ...any) error {
	_, err := c.q.ExecContext(ctx, query, args...)
	return err
}

func (c conn) Query(ctx context.Context, query string, args []any, fn func(row []any) error) error {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	for rows.Next() {
		row := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ExecBatch prepares query once and executes it for every row.
func (c conn) ExecBatch(ctx context.Context, query string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, err := c.q.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for n, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("row %d: %w", n, err)
		}
	}
	return nil
}
