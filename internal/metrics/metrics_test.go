package metrics

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/gaps"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/repair"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/timeseries"
)

var label = timeseries.Label{Variable: "wind", Region: "DEamprion", Attribute: "generation", Source: "Amprion"}

func TestObserveReport(t *testing.T) {
	m := New("")
	rep := gaps.NewReport(timeseries.Resolution15, gaps.PassInitial)
	rep.Set(label, []gaps.Run{{Length: 10}, {Length: 2}})
	rep.Set(timeseries.Label{Variable: "solar", Region: "DE"}, nil)

	m.ObserveReport(rep)

	if got := testutil.ToFloat64(m.GapRuns.WithLabelValues("15min", "initial")); got != 2 {
		t.Errorf("gap runs = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(m.GapLength); got != 1 {
		t.Errorf("gap length series = %d, want 1", got)
	}
}

func TestRecord(t *testing.T) {
	m := New("")
	ctx := context.Background()
	outcomes := []repair.Outcome{
		{Resolution: timeseries.Resolution15, Strategy: repair.StrategyInterpolate, Patched: true},
		{Resolution: timeseries.Resolution15, Strategy: repair.StrategyInterpolate, Patched: true},
		{Resolution: timeseries.Resolution15, Strategy: repair.StrategyGuess, Reason: repair.ReasonDivision},
	}
	for _, o := range outcomes {
		if err := m.Record(ctx, o); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	if got := testutil.ToFloat64(m.RunsPatched.WithLabelValues("15min", "interpolate")); got != 2 {
		t.Errorf("patched = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RunsUnpatched.WithLabelValues("15min", repair.ReasonDivision)); got != 1 {
		t.Errorf("unpatched = %v, want 1", got)
	}
}

func TestObserveDataset(t *testing.T) {
	m := New("")
	ds := timeseries.NewDataset(timeseries.Resolution60)
	start := time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)
	f := timeseries.NewFrame()
	f.Timestamps = []time.Time{start, start.Add(time.Hour)}
	f.Columns[label] = []float64{1, 2}
	if err := ds.MergeFrame(f); err != nil {
		t.Fatalf("MergeFrame failed: %v", err)
	}

	m.ObserveDataset(ds)

	if got := testutil.ToFloat64(m.Series.WithLabelValues("60min")); got != 1 {
		t.Errorf("series = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.GridLength.WithLabelValues("60min")); got != 2 {
		t.Errorf("grid length = %v, want 2", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	m := New("test")
	m.Finish(3*time.Second, true)
	path := filepath.Join(t.TempDir(), "grid.prom")

	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(data), "test_run_duration_seconds 3") {
		t.Errorf("textfile missing run duration:\n%s", data)
	}
}

func TestHandler(t *testing.T) {
	m := New("")
	m.ObserveStage("read", 250*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Body.String(), `grid_timeseries_stage_duration_seconds_count{stage="read"} 1`) {
		t.Errorf("scrape output missing stage histogram:\n%s", rec.Body.String())
	}
}
