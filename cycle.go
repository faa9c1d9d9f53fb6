package gtfsreload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dzfranklin/gtfsreload/gtfs"
	"github.com/dzfranklin/gtfsreload/ingest"
	"github.com/dzfranklin/gtfsreload/internal/metrics"
	"github.com/dzfranklin/gtfsreload/record"
	"github.com/dzfranklin/gtfsreload/store/postgres"
	"github.com/dzfranklin/gtfsreload/store/sqldb"
	"github.com/dzfranklin/gtfsreload/store/sqlite"
)

// OpenStore opens a store by driver name: sqlite (crawshaw), postgres (pgx)
// or modernc (database/sql with modernc.org/sqlite).
func OpenStore(ctx context.Context, driver, dsn string, logger *slog.Logger) (record.Store, error) {
	switch driver {
	case "sqlite":
		return sqlite.Open(dsn, logger)
	case "postgres":
		return postgres.Open(ctx, dsn, logger)
	case "modernc":
		return sqldb.Open("sqlite", dsn, record.SQLite, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

type CycleOptions struct {
	Source  string
	S3      ingest.S3Options
	WorkDir string

	Driver string
	DSN    string

	// ClipFeature is GeoJSON text; when set the feed is clipped before loading.
	ClipFeature  string
	CreateSchema bool
	Validate     bool

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// RunCycle runs one fetch, parse and load. Retrieval and parsing finish before
// the store is opened, so an ingestion failure never touches the store.
func RunCycle(ctx context.Context, opts CycleOptions) (*LoadResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	res, err := runCycle(ctx, opts, logger)
	if opts.Metrics != nil {
		if err != nil {
			var d time.Duration
			if res != nil {
				d = res.Duration
			}
			opts.Metrics.ObserveFailure(d)
		} else {
			opts.Metrics.ObserveSuccess(res.Duration, res.Rows, time.Now())
		}
	}
	return res, err
}

func runCycle(ctx context.Context, opts CycleOptions, logger *slog.Logger) (*LoadResult, error) {
	feed, err := fetchFeed(ctx, opts, logger)
	if err != nil {
		return nil, err
	}

	if opts.ClipFeature != "" {
		feature, err := gtfs.ParseClipFeature(opts.ClipFeature)
		if err != nil {
			return nil, err
		}
		feed = feed.Clip(feature)
	}

	store, err := OpenStore(ctx, opts.Driver, opts.DSN, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("close store", "error", err)
		}
	}()

	if opts.CreateSchema {
		if err := gtfs.CreateSchema(ctx, store); err != nil {
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	return Load(ctx, store, feed, &LoadOptions{Validate: opts.Validate, Logger: logger})
}

func fetchFeed(ctx context.Context, opts CycleOptions, logger *slog.Logger) (*gtfs.Feed, error) {
	workDir := opts.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}

	fetcher := &ingest.Fetcher{S3: opts.S3, Logger: logger}
	path, err := fetcher.Fetch(ctx, opts.Source, workDir)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	if ingest.IsRemote(opts.Source) {
		defer func() { _ = os.Remove(path) }()
	}

	logger.Info(fmt.Sprintf("Reading %s", opts.Source))
	feed, err := ingest.ReadArchive(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", opts.Source, err)
	}
	return feed, nil
}
