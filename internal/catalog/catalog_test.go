package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/timeseries"
)

const sample = `
50Hertz:
  wind:
    web: http://www.50hertz.com/de/Kennzahlen/Windenergie/Hochrechnung
    resolution: 15min
    region: DE50hertz
    separator: ";"
    decimal: ","
    skip_rows: 4
    time_columns: [Datum, Von]
    time_layout: "02.01.2006 15:04"
    location: Europe/Berlin
    columns:
      - {name: "MW", attribute: generation}
      - {name: "Prognose (MW)", attribute: forecast}
TransnetBW:
  solar:
    web: https://www.transnetbw.de/de/kennzahlen/erneuerbare-energien/fotovoltaik
    resolution: 15min
    format: xlsx
    compression: zstd
    region: DEtransnetbw
    sheet: Data
    time_columns: [Datum bis]
    time_layout: "2006-01-02 15:04"
    location: Europe/Berlin
    shift: -15m
    columns:
      - {name: "Ist-Wert (MW)", attribute: generation}
Energinet.dk:
  load:
    web: http://www.energinet.dk
    resolution: 60min
    time_columns: [HourUTC]
    columns:
      - {name: "GrossCon_DK1", attribute: load, region: DKw}
      - {name: "GrossCon_DK2", attribute: load, region: DKe}
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	entries := c.Entries()
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].Key() != "50Hertz/wind" || entries[1].Key() != "Energinet.dk/load" || entries[2].Key() != "TransnetBW/solar" {
		t.Errorf("unexpected order: %s, %s, %s", entries[0].Key(), entries[1].Key(), entries[2].Key())
	}

	wind, _ := c.Entry("50Hertz", "wind")
	if wind.Format != FormatCSV || wind.Compression != CompressionNone || wind.Separator != ";" {
		t.Errorf("defaults not applied: %+v", wind)
	}
	labels := wind.Labels()
	want := timeseries.Label{Variable: "wind", Region: "DE50hertz", Attribute: "forecast", Source: "50Hertz", Web: wind.Web}
	if len(labels) != 2 || labels[1] != want {
		t.Errorf("labels = %+v", labels)
	}

	solar, _ := c.Entry("TransnetBW", "solar")
	if solar.Shift != -15*time.Minute {
		t.Errorf("shift = %s", solar.Shift)
	}

	load, _ := c.Entry("Energinet.dk", "load")
	if load.TimeLayout != time.RFC3339 {
		t.Errorf("default layout = %q", load.TimeLayout)
	}
	if got := load.Labels()[1].Region; got != "DKe" {
		t.Errorf("column region override = %q", got)
	}
	loc, err := load.TimeLocation()
	if err != nil || loc != time.UTC {
		t.Errorf("TimeLocation = %v, %v", loc, err)
	}

	res := c.Resolutions()
	if len(res) != 2 || res[0] != timeseries.Resolution15 {
		t.Errorf("Resolutions = %v", res)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{
			name: "resolution",
			yaml: "A:\n  wind:\n    resolution: 30min\n    region: X\n    time_columns: [t]\n    columns: [{name: v, attribute: generation}]\n",
			want: ErrInvalidResolution,
		},
		{
			name: "format",
			yaml: "A:\n  wind:\n    resolution: 15min\n    format: pdf\n    region: X\n    time_columns: [t]\n    columns: [{name: v, attribute: generation}]\n",
			want: ErrInvalidFormat,
		},
		{
			name: "duplicate label",
			yaml: "A:\n  wind:\n    resolution: 15min\n    region: X\n    time_columns: [t]\n    columns: [{name: v, attribute: generation}, {name: w, attribute: generation}]\n",
			want: ErrDuplicateSeries,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestParse_SameLabelDifferentResolution(t *testing.T) {
	yml := `
A:
  wind:
    resolution: 15min
    region: X
    time_columns: [t]
    columns: [{name: v, attribute: generation}]
  solar:
    resolution: 60min
    region: X
    time_columns: [t]
    columns: [{name: v, attribute: generation, variable: wind}]
`
	if _, err := Parse([]byte(yml)); err != nil {
		t.Fatalf("labels in different resolutions must not collide: %v", err)
	}
}

func TestParse_BadLocation(t *testing.T) {
	yml := "A:\n  wind:\n    resolution: 15min\n    region: X\n    location: Mars/Olympus\n    time_columns: [t]\n    columns: [{name: v, attribute: generation}]\n"
	if _, err := Parse([]byte(yml)); err == nil {
		t.Fatal("expected error for unknown location")
	}
}

func TestSubset(t *testing.T) {
	c, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	sub, err := c.Subset([]string{"TransnetBW"})
	if err != nil {
		t.Fatalf("Subset failed: %v", err)
	}
	if got := sub.Sources(); len(got) != 1 || got[0] != "TransnetBW" {
		t.Errorf("Sources = %v", got)
	}
	if all, _ := c.Subset(nil); len(all.Entries()) != 3 {
		t.Error("empty subset should keep everything")
	}
	if _, err := c.Subset([]string{"Nowhere"}); !errors.Is(err, ErrUnknownSource) {
		t.Errorf("expected ErrUnknownSource, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(c.Sources()) != 3 {
		t.Errorf("Sources = %v", c.Sources())
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("expected error for missing file")
	}
}
