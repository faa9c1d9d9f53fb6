package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	m := New()
	at := time.Date(2024, 6, 3, 4, 0, 0, 0, time.UTC)

	m.ObserveSuccess(3*time.Second, map[string]int{"gtfs_stop": 12, "gtfs_route": 2}, at)
	m.ObserveFailure(time.Second)
	m.ObserveFailure(0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cycles.WithLabelValues("failure")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.rows.WithLabelValues("gtfs_stop")))
	assert.Equal(t, float64(at.Unix()), testutil.ToFloat64(m.lastSuccess))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.ObserveSuccess(time.Second, map[string]int{"gtfs_agency": 1}, time.Unix(1717387200, 0))

	path := filepath.Join(t.TempDir(), "gtfsreload.prom")
	require.NoError(t, m.WriteTextfile(path))

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(contents), `gtfsreload_load_cycles_total{result="success"} 1`)
	assert.Contains(t, string(contents), `gtfsreload_rows_loaded{table="gtfs_agency"} 1`)
	assert.Contains(t, string(contents), "# TYPE gtfsreload_load_duration_seconds histogram")
}

func TestRegistry(t *testing.T) {
	m := New()
	m.ObserveSuccess(time.Second, map[string]int{"gtfs_stop": 5, "gtfs_trip": 2}, time.Now())

	n, err := testutil.GatherAndCount(m.Registry(), "gtfsreload_rows_loaded")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
