package record

import (
	"context"
	"fmt"
)

// Conn is the capability every connection handle exposes to a Mapper, whether
// it is a standalone connection, a pool or an open transaction.
//
// Query calls fn once per result row. Row values are nil, int64, float64,
// string or []byte, or whatever integer type the driver reports; the mapper
// converts them to field types. Implementations must not be used concurrently.
type Conn interface {
	Dialect() *Dialect
	Exec(ctx context.Context, query string, args ...any) error
	ExecBatch(ctx context.Context, query string, rows [][]any) error
	Query(ctx context.Context, query string, args []any, fn func(row []any) error) error
}

type Tx interface {
	Conn
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store is a Conn that can also open a transaction.
type Store interface {
	Conn
	Begin(ctx context.Context) (Tx, error)
	Close() error
}

// Dialect captures the statement differences between stores.
type Dialect struct {
	Name string

	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string

	// Truncate is a format string taking the table name.
	Truncate string

	SuspendChecks string
	ResumeChecks  string

	IntegerType string
	TextType    string

	// DeferrableRefs marks foreign keys DEFERRABLE so SuspendChecks can defer them.
	DeferrableRefs bool
}

func (d *Dialect) placeholders(start, n int) []string {
	out := make([]string, n)
	for i := range n {
		out[i] = d.Placeholder(start + i)
	}
	return out
}

var SQLite = &Dialect{
	Name:          "sqlite",
	Placeholder:   func(n int) string { return fmt.Sprintf("?%d", n) },
	Truncate:      "DELETE FROM %s",
	SuspendChecks: "PRAGMA defer_foreign_keys = ON",
	ResumeChecks:  "PRAGMA defer_foreign_keys = OFF",
	IntegerType:   "INTEGER",
	TextType:      "TEXT",
}

// Postgres refuses TRUNCATE on referenced tables, so destroy-all is an
// unconditional DELETE run while constraints are deferred.
var Postgres = &Dialect{
	Name:           "postgres",
	Placeholder:    func(n int) string { return fmt.Sprintf("$%d", n) },
	Truncate:       "DELETE FROM %s",
	SuspendChecks:  "SET CONSTRAINTS ALL DEFERRED",
	ResumeChecks:   "SET CONSTRAINTS ALL IMMEDIATE",
	IntegerType:    "BIGINT",
	TextType:       "TEXT",
	DeferrableRefs: true,
}
