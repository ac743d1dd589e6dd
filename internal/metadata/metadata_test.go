package metadata

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/gaps"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/tables"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/timeseries"
)

var start = time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)

var (
	wind  = timeseries.Label{Variable: "wind", Region: "DE", Attribute: "generation", Source: "own calculation"}
	price = timeseries.Label{Variable: "price", Region: "DE", Attribute: "day_ahead", Source: "EPEX"}
	solar = timeseries.Label{Variable: "solar", Region: "DE", Attribute: "profile", Source: "own calculation"}
)

func dataset(t *testing.T) *timeseries.Dataset {
	t.Helper()
	ds := timeseries.NewDataset(timeseries.Resolution60)
	f := timeseries.NewFrame()
	f.Timestamps = []time.Time{start, start.Add(time.Hour), start.Add(2 * time.Hour)}
	f.Columns[wind] = []float64{1, timeseries.Missing, 3}
	f.Columns[price] = []float64{30, 31, 32}
	f.Columns[solar] = []float64{0, 0.1, 0.2}
	if err := ds.MergeFrame(f); err != nil {
		t.Fatalf("MergeFrame failed: %v", err)
	}
	return ds
}

func TestUnit(t *testing.T) {
	tests := []struct {
		label timeseries.Label
		want  string
	}{
		{wind, "MW"},
		{price, "EUR/MWh"},
		{solar, "fraction"},
	}
	for _, tt := range tests {
		if got := Unit(tt.label); got != tt.want {
			t.Errorf("Unit(%s) = %q, want %q", tt.label, got, tt.want)
		}
	}
}

func TestWideSchema(t *testing.T) {
	schema := WideSchema(dataset(t))
	if len(schema.Fields) != 4 {
		t.Fatalf("fields = %d, want 4", len(schema.Fields))
	}
	if schema.Fields[0].Name != tables.TimestampHeader || schema.Fields[0].Label != nil {
		t.Errorf("first field = %+v", schema.Fields[0])
	}
	// series columns follow label order
	if got := *schema.Fields[1].Label; got != price {
		t.Errorf("second field label = %s, want %s", got, price)
	}
	if schema.Fields[3].Unit != "MW" {
		t.Errorf("wind unit = %q", schema.Fields[3].Unit)
	}
}

func TestDescriptorMarshal(t *testing.T) {
	created := time.Date(2019, 4, 9, 12, 0, 0, 0, time.UTC)
	d := NewDescriptor("run-1", ProducerInfo{Name: "grid-timeseries", Version: "v1"}, created)

	data := []byte("a,b\n1,2\n")
	d.AddResource("timeseries_60min_singleindex", "timeseries_60min_singleindex.csv", "csv", "text/csv", tables.Sum(data), 1, WideSchema(dataset(t)))
	d.AddResource("timeseries_60min", "timeseries_60min.parquet", "parquet", "application/vnd.apache.parquet", tables.Sum([]byte("x")), 9, LongSchema())

	raw, err := d.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var got Descriptor
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got.Version != "2019-04-09" || got.ID != "run-1" {
		t.Errorf("version/id = %q/%q", got.Version, got.ID)
	}
	if len(got.Resources) != 2 {
		t.Fatalf("resources = %d, want 2", len(got.Resources))
	}
	// sorted by path: "." sorts before "_"
	if got.Resources[0].Format != "parquet" || got.Resources[1].Format != "csv" {
		t.Errorf("resource order = %s, %s", got.Resources[0].Path, got.Resources[1].Path)
	}
	long, wide := got.Resources[0], got.Resources[1]
	if wide.Hash != tables.Sum(data).Hash || wide.Bytes != int64(len(data)) {
		t.Errorf("csv resource = %+v", wide)
	}
	if pk := long.Schema.PrimaryKey; len(pk) != 6 || pk[0] != "utc_timestamp" {
		t.Errorf("long primary key = %v", pk)
	}
}

func TestRowValues(t *testing.T) {
	rows := tables.Rows(dataset(t))
	var nulls int
	for _, r := range rows {
		vals := rowValues(r)
		if len(vals) != len(tables.Columns) {
			t.Fatalf("row has %d values, want %d", len(vals), len(tables.Columns))
		}
		if vals[6] == nil {
			nulls++
			continue
		}
		if v, ok := vals[6].(float64); !ok || math.IsNaN(v) {
			t.Errorf("value = %#v", vals[6])
		}
	}
	if nulls != 1 {
		t.Errorf("null values = %d, want 1", nulls)
	}
}

func TestGapRows(t *testing.T) {
	ds := dataset(t)
	rep, err := gaps.BuildReport(ds, gaps.PassInitial)
	if err != nil {
		t.Fatalf("BuildReport failed: %v", err)
	}
	rows := gapRows("run-1", []*gaps.Report{rep})
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	r := rows[0]
	if len(r) != len(gapColumns) {
		t.Fatalf("row has %d values, want %d", len(r), len(gapColumns))
	}
	if r[0] != "run-1" || r[1] != "60min" || r[2] != "initial" || r[3] != "wind" {
		t.Errorf("row = %v", r)
	}
	if r[9] != 1 {
		t.Errorf("steps = %v, want 1", r[9])
	}
}

func TestNewSinkDisabled(t *testing.T) {
	sink, err := NewSink(context.Background(), CatalogConfig{})
	if err != nil {
		t.Fatalf("NewSink failed: %v", err)
	}
	defer sink.Close()

	n, err := sink.WriteDataset(context.Background(), dataset(t))
	if err != nil || n != 0 {
		t.Errorf("WriteDataset = %d, %v", n, err)
	}
	if err := sink.RecordRun(context.Background(), RunRecord{RunID: "x"}); err != nil {
		t.Errorf("RecordRun failed: %v", err)
	}
}
