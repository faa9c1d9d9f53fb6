// Package sqlite implements record.Store on a single crawshaw.io/sqlite
// connection.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
	"github.com/dzfranklin/gtfsreload/record"
)

var (
	_ record.Store = (*Store)(nil)
	_ record.Tx    = (*Tx)(nil)
)

var openPragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA busy_timeout = 5000",
}

func sqlitexNoop(*sqlite.Stmt) error { return nil }

type Store struct {
	conn
	path   string
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path with foreign key
// enforcement on. A nil logger discards output.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		panic("Missing path")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c, err := sqlite.OpenConn(path, 0)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	for _, pragma := range openPragmas {
		if err := sqlitex.ExecTransient(c, pragma, sqlitexNoop); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("open sqlite %s: %w", path, err)
		}
	}

	logger.Debug("opened sqlite store", slog.String("path", path))
	return &Store{conn: conn{c: c}, path: path, logger: logger}, nil
}

func (s *Store) Begin(ctx context.Context) (record.Tx, error) {
	if err := s.Exec(ctx, "BEGIN"); err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &Tx{conn: s.conn}, nil
}

func (s *Store) Close() error {
	s.logger.Debug("closing sqlite store", slog.String("path", s.path))
	return s.c.Close()
}

type Tx struct {
	conn
	done bool
}

func (tx *Tx) Commit(ctx context.Context) error {
	if tx.done {
		return errors.New("transaction already finished")
	}
	// A failed COMMIT (e.g. a deferred foreign key violation) leaves the
	// transaction open; Rollback still has to run.
	if err := tx.Exec(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	tx.done = true
	return nil
}

func (tx *Tx) Rollback(ctx context.Context) error {
	if tx.done {
		return nil
	}
	tx.done = true
	// Rollback must run even when ctx has been cancelled.
	if err := tx.Exec(context.WithoutCancel(ctx), "ROLLBACK"); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// conn is shared by Store and Tx; statements on a Tx simply run on the
// connection that holds the open transaction.
type conn struct {
	c *sqlite.Conn
}

func (c conn) Dialect() *record.Dialect {
	return record.SQLite
}

func (c conn) interruptOn(ctx context.Context) func() {
	old := c.c.SetInterrupt(ctx.Done())
	return func() { c.c.SetInterrupt(old) }
}

func (c conn) Exec(ctx context.Context, query string, args ...any) error {
	defer c.interruptOn(ctx)()
	return sqlitex.Exec(c.c, query, sqlitexNoop, args...)
}

func (c conn) Query(ctx context.Context, query string, args []any, fn func(row []any) error) error {
	defer c.interruptOn(ctx)()
	return sqlitex.Exec(c.c, query, func(stmt *sqlite.Stmt) error {
		row := make([]any, stmt.ColumnCount())
		for i := range row {
			row[i] = columnValue(stmt, i)
		}
		return fn(row)
	}, args...)
}

// ExecBatch prepares query once and steps it for every row.
func (c conn) ExecBatch(ctx context.Context, query string, rows [][]any) error {
	defer c.interruptOn(ctx)()

	stmt, err := c.c.Prepare(query)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Reset() }()

	for n, row := range rows {
		if err := stmt.Reset(); err != nil {
			return err
		}
		if err := stmt.ClearBindings(); err != nil {
			return err
		}
		for i, v := range row {
			if err := bind(stmt, i+1, v); err != nil {
				return fmt.Errorf("row %d: %w", n, err)
			}
		}
		for {
			rowReturned, err := stmt.Step()
			if err != nil {
				return fmt.Errorf("row %d: %w", n, err)
			}
			if !rowReturned {
				break
			}
		}
	}
	return nil
}

func bind(stmt *sqlite.Stmt, param int, v any) error {
	switch v := v.(type) {
	case nil:
		stmt.BindNull(param)
	case string:
		stmt.BindText(param, v)
	case int64:
		stmt.BindInt64(param, v)
	case int:
		stmt.BindInt64(param, int64(v))
	case float64:
		stmt.BindFloat(param, v)
	case []byte:
		stmt.BindBytes(param, v)
	default:
		return fmt.Errorf("cannot bind %T", v)
	}
	return nil
}

func columnValue(stmt *sqlite.Stmt, col int) any {
	switch stmt.ColumnType(col) {
	case sqlite.SQLITE_NULL:
		return nil
	case sqlite.SQLITE_INTEGER:
		return stmt.ColumnInt64(col)
	case sqlite.SQLITE_FLOAT:
		return stmt.ColumnFloat(col)
	case sqlite.SQLITE_BLOB:
		buf := make([]byte, stmt.ColumnLen(col))
		stmt.ColumnBytes(col, buf)
		return buf
	default:
		return stmt.ColumnText(col)
	}
}
