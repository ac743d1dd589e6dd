package metadata

import (
	"context"
	"time"

	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/gaps"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/timeseries"
)

// CatalogConfig configures the SQL sink. An empty DSN disables it.
type CatalogConfig struct {
	PostgresDSN string
	Namespace   string
}

// Enabled reports whether a database is configured.
func (c CatalogConfig) Enabled() bool { return c.PostgresDSN != "" }

// Sink receives the tables and lineage of a run.
type Sink interface {
	WriteDataset(ctx context.Context, ds *timeseries.Dataset) (int64, error)
	RecordGaps(ctx context.Context, runID string, reports []*gaps.Report) error
	RecordRun(ctx context.Context, rec RunRecord) error
	Close() error
}

// RunRecord is the lineage row of one run.
type RunRecord struct {
	RunID           string
	StartedAt       time.Time
	FinishedAt      time.Time
	Status          string
	Series          map[string]int
	Interpolated    int
	Guessed         int
	Unpatched       int
	Checksums       map[string]string
	ProducerVersion string
}

// NewSink returns the postgres sink when a DSN is configured, otherwise a
// sink that discards everything.
func NewSink(ctx context.Context, cfg CatalogConfig) (Sink, error) {
	if !cfg.Enabled() {
		return noopSink{}, nil
	}
	return NewPostgresSink(ctx, cfg)
}

type noopSink struct{}

func (noopSink) WriteDataset(_ context.Context, _ *timeseries.Dataset) (int64, error) { return 0, nil }
func (noopSink) RecordGaps(_ context.Context, _ string, _ []*gaps.Report) error       { return nil }
func (noopSink) RecordRun(_ context.Context, _ RunRecord) error                        { return nil }
func (noopSink) Close() error                                                          { return nil }
