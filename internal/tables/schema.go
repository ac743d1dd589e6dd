// Package tables encodes datasets into the published file formats.
package tables

import (
	"time"

	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/timeseries"
)

// Row is one observation in long format.
type Row struct {
	Timestamp time.Time `parquet:"utc_timestamp,timestamp(millisecond)"`
	Variable  string    `parquet:"variable,dict"`
	Region    string    `parquet:"region,dict"`
	Attribute string    `parquet:"attribute,dict"`
	Source    string    `parquet:"source,dict"`
	Web       string    `parquet:"web,dict"`
	Value     *float64  `parquet:"value,optional"`
}

// TableName returns the canonical table name of a resolution.
func TableName(res timeseries.Resolution) string {
	return "timeseries_" + string(res)
}

// Columns lists the long-format column names in Row order.
var Columns = []string{"utc_timestamp", "variable", "region", "attribute", "source", "web", "value"}

// Config configures table output generation.
type Config struct {
	Compression string // "snappy" | "zstd" | "none"
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Compression: "snappy"}
}

// SchemaVersion returns the version of the schema.
// Increment this when making breaking changes.
const SchemaVersion = "1.0.0"

// Rows flattens ds into long format, ordered by label and then time. Missing
// values become rows with a null value, so every series covers the grid.
func Rows(ds *timeseries.Dataset) []Row {
	g := ds.Grid()
	out := make([]Row, 0, ds.Len()*g.Len)
	for _, s := range ds.All() {
		l := s.Label
		for i, v := range s.Values {
			r := Row{
				Timestamp: g.At(i),
				Variable:  l.Variable,
				Region:    l.Region,
				Attribute: l.Attribute,
				Source:    l.Source,
				Web:       l.Web,
			}
			if !timeseries.IsMissing(v) {
				value := v
				r.Value = &value
			}
			out = append(out, r)
		}
	}
	return out
}
