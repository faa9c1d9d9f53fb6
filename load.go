// Package gtfsreload replaces the contents of a relational store with a freshly
// parsed GTFS feed in a single transaction.
package gtfsreload

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dzfranklin/gtfsreload/gtfs"
	"github.com/dzfranklin/gtfsreload/record"
)

// State is the progress of one load.
type State int

const (
	Idle State = iota
	TransactionOpen
	ChecksSuspended
	Truncating
	ChecksResumed
	Inserting
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case TransactionOpen:
		return "transaction-open"
	case ChecksSuspended:
		return "checks-suspended"
	case Truncating:
		return "truncating"
	case ChecksResumed:
		return "checks-resumed"
	case Inserting:
		return "inserting"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type LoadOptions struct {
	// Validate audits references inside the transaction before commit.
	Validate bool
	Logger   *slog.Logger
}

type LoadResult struct {
	State    State
	Rows     map[string]int // rows inserted per table
	Issues   []string       // audit issues, if Validate was set
	Duration time.Duration
}

// step is one statement-level action against a single table.
type step struct {
	table string
	rows  int
	run   func(ctx context.Context, conn record.Conn) error
}

func destroyAll[T any](m *record.Mapper[T]) step {
	return step{table: m.Descriptor().Table, run: m.DestroyAll}
}

func saveAll[T any](m *record.Mapper[T], recs []T) step {
	return step{
		table: m.Descriptor().Table,
		rows:  len(recs),
		run: func(ctx context.Context, conn record.Conn) error {
			return m.SaveAll(ctx, conn, recs)
		},
	}
}

// Children before parents.
func truncateSteps() []step {
	return []step{
		destroyAll(gtfs.Transfers),
		destroyAll(gtfs.Frequencies),
		destroyAll(gtfs.StopTimes),
		destroyAll(gtfs.Trips),
		destroyAll(gtfs.CalendarDates),
		destroyAll(gtfs.Calendars),
		destroyAll(gtfs.Routes),
		destroyAll(gtfs.Stops),
		destroyAll(gtfs.Shapes),
		destroyAll(gtfs.Agencies),
	}
}

// Parents before children.
func insertSteps(feed *gtfs.Feed) []step {
	return []step{
		saveAll(gtfs.Agencies, feed.Agencies),
		saveAll(gtfs.Shapes, feed.Shapes),
		saveAll(gtfs.Stops, feed.Stops),
		saveAll(gtfs.Routes, feed.Routes),
		saveAll(gtfs.Calendars, feed.Calendars),
		saveAll(gtfs.CalendarDates, feed.CalendarDates),
		saveAll(gtfs.Trips, feed.Trips),
		saveAll(gtfs.StopTimes, feed.StopTimes),
		saveAll(gtfs.Frequencies, feed.Frequencies),
		saveAll(gtfs.Transfers, feed.Transfers),
	}
}

// Load atomically replaces every table in store with the rows of feed. The
// store is left untouched if any step fails. feed.Stops is sorted in place.
//
// The result is non-nil even on error and carries the state the load reached.
func Load(ctx context.Context, store record.Store, feed *gtfs.Feed, opts *LoadOptions) (*LoadResult, error) {
	if store == nil {
		panic("Missing store")
	}
	if feed == nil {
		panic("Missing feed")
	}
	if opts == nil {
		opts = &LoadOptions{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	l := &loader{opts: opts, logger: logger, result: &LoadResult{State: Idle, Rows: make(map[string]int)}}
	start := time.Now()
	err := l.run(ctx, store, feed)
	l.result.Duration = time.Since(start)
	if err != nil {
		l.setState(Aborted)
		return l.result, err
	}
	logger.Info(fmt.Sprintf("Loaded feed in %s", l.result.Duration.Round(time.Millisecond)))
	return l.result, nil
}

type loader struct {
	opts   *LoadOptions
	logger *slog.Logger
	result *LoadResult
}

func (l *loader) setState(s State) {
	l.logger.Debug("load state", "from", l.result.State, "to", s)
	l.result.State = s
}

func (l *loader) run(ctx context.Context, store record.Store, feed *gtfs.Feed) (err error) {
	gtfs.SortStops(feed.Stops)

	tx, err := store.Begin(ctx)
	if err != nil {
		return err
	}
	l.setState(TransactionOpen)
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			l.logger.Error("rollback failed", "error", rbErr)
		}
	}()

	if err := l.truncate(ctx, tx); err != nil {
		return err
	}

	l.setState(Inserting)
	for _, s := range insertSteps(feed) {
		if err := s.run(ctx, tx); err != nil {
			return err
		}
		l.result.Rows[s.table] = s.rows
		l.logger.Info(fmt.Sprintf("Loaded %d rows into %s", s.rows, s.table))
	}

	if l.opts.Validate {
		issues, err := Validate(ctx, tx, l.logger)
		l.result.Issues = issues
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	l.setState(Committed)
	return nil
}

// truncate empties every table with reference checks suspended. Checks are
// resumed on every exit path, before the caller rolls back.
func (l *loader) truncate(ctx context.Context, conn record.Conn) (err error) {
	dialect := conn.Dialect()
	if err := conn.Exec(ctx, dialect.SuspendChecks); err != nil {
		return fmt.Errorf("suspend checks: %w", err)
	}
	l.setState(ChecksSuspended)

	defer func() {
		if err == nil {
			if err = conn.Exec(ctx, dialect.ResumeChecks); err != nil {
				err = fmt.Errorf("resume checks: %w", err)
				return
			}
			l.setState(ChecksResumed)
			return
		}
		if resumeErr := conn.Exec(context.WithoutCancel(ctx), dialect.ResumeChecks); resumeErr != nil {
			l.logger.Debug("resume checks after failure", "error", resumeErr)
		}
	}()

	l.setState(Truncating)
	for _, s := range truncateSteps() {
		if err := s.run(ctx, conn); err != nil {
			return err
		}
	}
	return nil
}
