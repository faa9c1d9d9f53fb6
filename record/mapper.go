package record

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

var ErrNotFound = errors.New("record not found")

// Mapper performs data access for records of type T against any Conn. It holds
// no state besides the descriptor and is safe to share.
type Mapper[T any] struct {
	desc *Descriptor
}

func NewMapper[T any](desc *Descriptor) *Mapper[T] {
	if typ := reflect.TypeFor[T](); desc.typ != typ {
		panic(fmt.Sprintf("record: descriptor for %s used with %s", desc.typ, typ))
	}
	return &Mapper[T]{desc: desc}
}

func (m *Mapper[T]) Descriptor() *Descriptor {
	return m.desc
}

// All fetches every row of the table.
func (m *Mapper[T]) All(ctx context.Context, conn Conn) ([]T, error) {
	var out []T
	err := conn.Query(ctx, m.desc.SelectAllSQL(), nil, func(row []any) error {
		var rec T
		if err := m.desc.scan(reflect.ValueOf(&rec).Elem(), row); err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", m.desc.Table, err)
	}
	return out, nil
}

// Save inserts rec, or updates the non-key fields of the existing row with the
// same key. Every key field must be set; otherwise Save returns
// ErrMissingPrimaryKey without touching the store.
func (m *Mapper[T]) Save(ctx context.Context, conn Conn, rec *T) error {
	v := reflect.ValueOf(rec).Elem()
	keys, err := m.desc.keyValues(v)
	if err != nil {
		return err
	}
	dialect := conn.Dialect()

	var count int64
	err = conn.Query(ctx, m.desc.CountByKeySQL(dialect), keys, func(row []any) error {
		n, err := toInt64(row[0])
		count = n
		return err
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", m.desc.Table, err)
	}

	if count == 0 {
		if err := conn.Exec(ctx, m.desc.InsertSQL(dialect), values(v, m.desc.Fields)...); err != nil {
			return fmt.Errorf("save %s: insert: %w", m.desc.Table, err)
		}
		return nil
	}

	query := m.desc.UpdateSQL(dialect)
	if query == "" {
		return nil
	}
	args := append(values(v, m.desc.DataFields()), keys...)
	if err := conn.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("save %s: update: %w", m.desc.Table, err)
	}
	return nil
}

// Reload overwrites rec with the stored row that has the same key.
func (m *Mapper[T]) Reload(ctx context.Context, conn Conn, rec *T) error {
	v := reflect.ValueOf(rec).Elem()
	keys, err := m.desc.keyValues(v)
	if err != nil {
		return err
	}

	found := false
	err = conn.Query(ctx, m.desc.SelectByKeySQL(conn.Dialect()), keys, func(row []any) error {
		found = true
		return m.desc.scan(v, row)
	})
	if err != nil {
		return fmt.Errorf("reload %s: %w", m.desc.Table, err)
	}
	if !found {
		return fmt.Errorf("reload %s: %w", m.desc.Table, ErrNotFound)
	}
	return nil
}

// DestroyAll removes every row. Referencing tables must already be empty or
// constraint checking suspended by the caller.
func (m *Mapper[T]) DestroyAll(ctx context.Context, conn Conn) error {
	if err := conn.Exec(ctx, m.desc.TruncateSQL(conn.Dialect())); err != nil {
		return fmt.Errorf("truncate %s: %w", m.desc.Table, err)
	}
	return nil
}

// SaveAll inserts every record in one batch. It assumes none of the keys exist.
// A record with a missing key fails the whole call before anything is sent.
func (m *Mapper[T]) SaveAll(ctx context.Context, conn Conn, recs []T) error {
	if len(recs) == 0 {
		return nil
	}
	rows := make([][]any, len(recs))
	for i := range recs {
		v := reflect.ValueOf(&recs[i]).Elem()
		if _, err := m.desc.keyValues(v); err != nil {
			return fmt.Errorf("insert %s: row %d: %w", m.desc.Table, i, err)
		}
		rows[i] = values(v, m.desc.Fields)
	}
	if err := conn.ExecBatch(ctx, m.desc.InsertSQL(conn.Dialect()), rows); err != nil {
		return fmt.Errorf("insert %s: %w", m.desc.Table, err)
	}
	return nil
}
