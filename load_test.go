package gtfsreload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/dzfranklin/gtfsreload/gtfs"
	"github.com/dzfranklin/gtfsreload/ingest"
	"github.com/dzfranklin/gtfsreload/internal/testutil"
	"github.com/dzfranklin/gtfsreload/record"
	"github.com/dzfranklin/gtfsreload/store/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func str(s string) *string { return &s }

func testTempdir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "")
	require.NoError(t, err)
	t.Cleanup(func() {
		if t.Failed() {
			fmt.Println("Preserving tempdir after failed test", dir)
		} else {
			_ = os.RemoveAll(dir)
		}
	})
	return dir
}

func openTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.Open(testTempdir(t)+"/gtfs.db", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, gtfs.CreateSchema(context.Background(), store))
	return store
}

func readFixture(t *testing.T) *gtfs.Feed {
	feed, err := ingest.ReadArchive(testutil.ZipDir(t, "testdata/cta"))
	require.NoError(t, err)
	return feed
}

func countRows(t *testing.T, conn record.Conn) map[string]int {
	counts := make(map[string]int)
	for _, table := range gtfs.Tables {
		err := conn.Query(context.Background(), "SELECT COUNT(*) FROM "+table.Desc.Table, nil, func(row []any) error {
			counts[table.Desc.Table] = int(row[0].(int64))
			return nil
		})
		require.NoError(t, err)
	}
	return counts
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	feed := readFixture(t)

	res, err := Load(ctx, store, feed, nil)
	require.NoError(t, err)
	assert.Equal(t, Committed, res.State)
	assert.Equal(t, feed.RowCounts(), res.Rows)
	assert.Equal(t, feed.RowCounts(), countRows(t, store))

	stops, err := gtfs.Stops.All(ctx, store)
	require.NoError(t, err)
	assert.ElementsMatch(t, feed.Stops, stops)

	trips, err := gtfs.Trips.All(ctx, store)
	require.NoError(t, err)
	assert.ElementsMatch(t, feed.Trips, trips)
}

func TestLoadTwiceReplaces(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	newFeed := func() *gtfs.Feed {
		return &gtfs.Feed{
			Agencies: []gtfs.Agency{{AgencyName: str("Chicago Transit Authority"), AgencyURL: "http://transitchicago.com", AgencyTimezone: "America/Chicago"}},
			Routes:   []gtfs.Route{{RouteID: str("Red"), RouteLongName: str("Red Line"), RouteType: 1}},
		}
	}

	_, err := Load(ctx, store, newFeed(), nil)
	require.NoError(t, err)
	_, err = Load(ctx, store, newFeed(), nil)
	require.NoError(t, err)

	agencies, err := gtfs.Agencies.All(ctx, store)
	require.NoError(t, err)
	assert.Len(t, agencies, 1)
	routes, err := gtfs.Routes.All(ctx, store)
	require.NoError(t, err)
	assert.Len(t, routes, 1)
}

func TestLoadStopHierarchyInAnyOrder(t *testing.T) {
	station := gtfs.Stop{StopID: str("40380"), StopName: "Clark/Lake", LocationType: 1}
	platform := gtfs.Stop{StopID: str("30074"), StopName: "Clark/Lake (Forest Pk-bound)", ParentStation: str("40380")}

	orders := map[string][]gtfs.Stop{
		"parent first": {station, platform},
		"child first":  {platform, station},
	}
	for name, stops := range orders {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := openTestStore(t)

			_, err := Load(ctx, store, &gtfs.Feed{Stops: stops}, nil)
			require.NoError(t, err)

			got, err := gtfs.Stops.All(ctx, store)
			require.NoError(t, err)
			assert.ElementsMatch(t, []gtfs.Stop{station, platform}, got)
		})
	}
}

// Stops are ordered one level deep: parentless stops first, then by stop_id.
// A three-level hierarchy loads only when each child's stop_id sorts after its
// parent's.
func TestLoadThreeLevelStopHierarchy(t *testing.T) {
	station := gtfs.Stop{StopID: str("40380"), StopName: "Clark/Lake", LocationType: 1}
	platform := gtfs.Stop{StopID: str("30074"), StopName: "Clark/Lake (Forest Pk-bound)", LocationType: 0, ParentStation: str("40380")}

	t.Run("child sorts after parent", func(t *testing.T) {
		ctx := context.Background()
		store := openTestStore(t)
		boarding := gtfs.Stop{StopID: str("B30074"), StopName: "Clark/Lake boarding area", LocationType: 4, ParentStation: str("30074")}

		_, err := Load(ctx, store, &gtfs.Feed{Stops: []gtfs.Stop{boarding, platform, station}}, nil)
		require.NoError(t, err)

		got, err := gtfs.Stops.All(ctx, store)
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("child sorts before parent", func(t *testing.T) {
		ctx := context.Background()
		store := openTestStore(t)
		boarding := gtfs.Stop{StopID: str("10074"), StopName: "Clark/Lake boarding area", LocationType: 4, ParentStation: str("30074")}

		res, err := Load(ctx, store, &gtfs.Feed{Stops: []gtfs.Stop{station, platform, boarding}}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insert gtfs_stop")
		assert.Equal(t, Aborted, res.State)
		assert.Equal(t, 0, countRows(t, store)["gtfs_stop"])
	})
}

func TestLoadFailureLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	feed := readFixture(t)

	_, err := Load(ctx, store, feed, nil)
	require.NoError(t, err)
	before := countRows(t, store)

	bad := readFixture(t)
	bad.Agencies[0].AgencyName = str("Pace")
	bad.Transfers = append(bad.Transfers, gtfs.Transfer{FromStopID: str("30074"), ToStopID: str("no-such-stop")})

	res, err := Load(ctx, store, bad, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert gtfs_transfer")
	assert.Equal(t, Aborted, res.State)

	assert.Equal(t, before, countRows(t, store))
	agencies, err := gtfs.Agencies.All(ctx, store)
	require.NoError(t, err)
	require.Len(t, agencies, 1)
	assert.Equal(t, "Chicago Transit Authority", *agencies[0].AgencyName)

	// The connection is usable again after the rollback.
	_, err = Load(ctx, store, readFixture(t), nil)
	require.NoError(t, err)
}

func TestLoadEmptyFeed(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	_, err := Load(ctx, store, readFixture(t), nil)
	require.NoError(t, err)

	res, err := Load(ctx, store, &gtfs.Feed{}, nil)
	require.NoError(t, err)
	assert.Equal(t, Committed, res.State)
	for table, n := range countRows(t, store) {
		assert.Zero(t, n, table)
	}
}

func TestLoadValidate(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	feed := readFixture(t)
	feed.Trips[0].ShapeID = str("999999")

	res, err := Load(ctx, store, feed, &LoadOptions{Validate: true})
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, Aborted, res.State)
	assert.Equal(t, []string{"999999 in gtfs_trip is not a valid shape_id [trip_id: 57101]"}, res.Issues)
	for table, n := range countRows(t, store) {
		assert.Zero(t, n, table)
	}

	res, err = Load(ctx, store, feed, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Issues)
}

func TestLoadCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := openTestStore(t)
	res, err := Load(ctx, store, readFixture(t), nil)
	require.Error(t, err)
	assert.Equal(t, Aborted, res.State)
}

// recordingStore records every statement and fails the first one starting
// with failOn.
type recordingStore struct {
	log    *[]string
	failOn string
}

func newRecordingStore(failOn string) recordingStore {
	return recordingStore{log: new([]string), failOn: failOn}
}

func (s recordingStore) record(query string) error {
	*s.log = append(*s.log, query)
	if s.failOn != "" && strings.HasPrefix(query, s.failOn) {
		return errors.New("disk I/O error")
	}
	return nil
}

func (s recordingStore) Dialect() *record.Dialect { return record.SQLite }

func (s recordingStore) Exec(_ context.Context, query string, _ ...any) error {
	return s.record(query)
}

func (s recordingStore) ExecBatch(_ context.Context, query string, _ [][]any) error {
	return s.record(query)
}

func (s recordingStore) Query(_ context.Context, query string, _ []any, _ func([]any) error) error {
	return s.record(query)
}

func (s recordingStore) Begin(context.Context) (record.Tx, error) {
	if err := s.record("BEGIN"); err != nil {
		return nil, err
	}
	return recordingTx{s}, nil
}

func (s recordingStore) Close() error { return nil }

type recordingTx struct{ recordingStore }

func (tx recordingTx) Commit(context.Context) error   { return tx.record("COMMIT") }
func (tx recordingTx) Rollback(context.Context) error { return tx.record("ROLLBACK") }

func truncateSQL(descs ...*record.Descriptor) []string {
	var out []string
	for _, d := range descs {
		out = append(out, d.TruncateSQL(record.SQLite))
	}
	return out
}

func insertSQL(descs ...*record.Descriptor) []string {
	var out []string
	for _, d := range descs {
		out = append(out, d.InsertSQL(record.SQLite))
	}
	return out
}

var (
	childrenFirst = truncateSQL(
		gtfs.Transfers.Descriptor(), gtfs.Frequencies.Descriptor(), gtfs.StopTimes.Descriptor(),
		gtfs.Trips.Descriptor(), gtfs.CalendarDates.Descriptor(), gtfs.Calendars.Descriptor(),
		gtfs.Routes.Descriptor(), gtfs.Stops.Descriptor(), gtfs.Shapes.Descriptor(), gtfs.Agencies.Descriptor(),
	)
	parentsFirst = insertSQL(
		gtfs.Agencies.Descriptor(), gtfs.Shapes.Descriptor(), gtfs.Stops.Descriptor(),
		gtfs.Routes.Descriptor(), gtfs.Calendars.Descriptor(), gtfs.CalendarDates.Descriptor(),
		gtfs.Trips.Descriptor(), gtfs.StopTimes.Descriptor(), gtfs.Frequencies.Descriptor(), gtfs.Transfers.Descriptor(),
	)
)

func TestLoadStatementSequence(t *testing.T) {
	store := newRecordingStore("")

	res, err := Load(context.Background(), store, readFixture(t), nil)
	require.NoError(t, err)
	assert.Equal(t, Committed, res.State)

	var want []string
	want = append(want, "BEGIN", "PRAGMA defer_foreign_keys = ON")
	want = append(want, childrenFirst...)
	want = append(want, "PRAGMA defer_foreign_keys = OFF")
	want = append(want, parentsFirst...)
	want = append(want, "COMMIT")
	assert.Equal(t, want, *store.log)
}

func TestLoadEmptyTablesSkipInsert(t *testing.T) {
	store := newRecordingStore("")

	feed := &gtfs.Feed{Agencies: []gtfs.Agency{{AgencyName: str("CTA")}}}
	_, err := Load(context.Background(), store, feed, nil)
	require.NoError(t, err)

	var want []string
	want = append(want, "BEGIN", "PRAGMA defer_foreign_keys = ON")
	want = append(want, childrenFirst...)
	want = append(want, "PRAGMA defer_foreign_keys = OFF", parentsFirst[0], "COMMIT")
	assert.Equal(t, want, *store.log)
}

func TestLoadTruncateFailureResumesChecksBeforeRollback(t *testing.T) {
	store := newRecordingStore("DELETE FROM gtfs_trip")

	res, err := Load(context.Background(), store, readFixture(t), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "truncate gtfs_trip")
	assert.Equal(t, Aborted, res.State)

	var want []string
	want = append(want, "BEGIN", "PRAGMA defer_foreign_keys = ON")
	want = append(want, childrenFirst[:4]...)
	want = append(want, "PRAGMA defer_foreign_keys = OFF", "ROLLBACK")
	assert.Equal(t, want, *store.log)
}

func TestLoadInsertFailureRollsBack(t *testing.T) {
	store := newRecordingStore(parentsFirst[3])

	_, err := Load(context.Background(), store, readFixture(t), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert gtfs_route")

	log := *store.log
	assert.Equal(t, parentsFirst[3], log[len(log)-2])
	assert.Equal(t, "ROLLBACK", log[len(log)-1])
	assert.NotContains(t, log, "COMMIT")
}

func TestLoadMissingKeyRollsBack(t *testing.T) {
	store := newRecordingStore("")

	feed := &gtfs.Feed{
		Agencies: []gtfs.Agency{{AgencyName: str("CTA")}},
		Stops:    []gtfs.Stop{{StopID: str("40380"), StopName: "Clark/Lake"}, {StopName: "Nowhere"}},
	}
	res, err := Load(context.Background(), store, feed, nil)
	require.ErrorIs(t, err, record.ErrMissingPrimaryKey)
	assert.Equal(t, Aborted, res.State)

	var want []string
	want = append(want, "BEGIN", "PRAGMA defer_foreign_keys = ON")
	want = append(want, childrenFirst...)
	want = append(want, "PRAGMA defer_foreign_keys = OFF", parentsFirst[0], "ROLLBACK")
	assert.Equal(t, want, *store.log)
}

func TestLoadCommitFailureRollsBack(t *testing.T) {
	store := newRecordingStore("COMMIT")

	res, err := Load(context.Background(), store, readFixture(t), nil)
	require.ErrorContains(t, err, "commit")
	assert.Equal(t, Aborted, res.State)

	log := *store.log
	assert.Equal(t, []string{"COMMIT", "ROLLBACK"}, log[len(log)-2:])
}

func TestLoadBeginFailure(t *testing.T) {
	store := newRecordingStore("BEGIN")

	res, err := Load(context.Background(), store, readFixture(t), nil)
	require.Error(t, err)
	assert.Equal(t, Aborted, res.State)
	assert.Equal(t, []string{"BEGIN"}, *store.log)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "checks-suspended", ChecksSuspended.String())
	assert.Equal(t, "committed", Committed.String())
	assert.Equal(t, "State(42)", State(42).String())
}
