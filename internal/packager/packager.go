// Package packager runs the whole batch: read the raw files of the catalog,
// repair their gaps, derive the national aggregates and publish the tables.
package packager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/aggregate"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/audit"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/catalog"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/config"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/gaps"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/logging"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/metadata"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/metrics"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/repair"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/source"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/storage"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/timeseries"
)

// Version information (set via ldflags)
var (
	Version = "v0.1.0"
	GitSHA  = "unknown"
)

// ProducerName identifies this software in lineage records.
const ProducerName = "grid-timeseries"

// Deps are the collaborators of a run. Nil Sink, Audit and Metrics are
// replaced by no-op implementations.
type Deps struct {
	Catalog *catalog.Catalog
	Fetcher *source.Fetcher
	Store   storage.AtomicStore
	Sink    metadata.Sink
	Audit   audit.Emitter
	Metrics *metrics.Metrics
}

// Packager orchestrates one run.
type Packager struct {
	cfg   config.Config
	runID string
	deps  Deps
	log   *slog.Logger
}

// New creates a packager for runID. An empty runID is generated.
func New(cfg config.Config, runID string, deps Deps) (*Packager, error) {
	if deps.Catalog == nil || deps.Fetcher == nil || deps.Store == nil {
		return nil, errors.New("packager: catalog, fetcher and store are required")
	}
	if runID == "" {
		runID = logging.GenerateRunID()
	}
	if deps.Sink == nil {
		sink, err := metadata.NewSink(context.Background(), metadata.CatalogConfig{})
		if err != nil {
			return nil, fmt.Errorf("noop sink: %w", err)
		}
		deps.Sink = sink
	}
	if deps.Audit == nil {
		emitter, err := audit.NewEmitter(audit.Config{}, runID)
		if err != nil {
			return nil, fmt.Errorf("noop audit emitter: %w", err)
		}
		deps.Audit = emitter
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New("")
	}
	return &Packager{
		cfg:   cfg,
		runID: runID,
		deps:  deps,
		log:   logging.RunLogger(runID).With("component", "packager"),
	}, nil
}

// Open builds every collaborator from cfg. The caller closes the packager.
func Open(ctx context.Context, cfg config.Config) (*Packager, error) {
	runID := cfg.Run.ID
	if runID == "" {
		runID = logging.GenerateRunID()
	}

	cat, err := catalog.Load(cfg.Source.Catalog)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	if len(cfg.Run.Subset) > 0 {
		if cat, err = cat.Subset(cfg.Run.Subset); err != nil {
			return nil, err
		}
	}

	var deps Deps
	deps.Catalog = cat
	closeAll := func() {
		p := &Packager{deps: deps, log: slog.Default()}
		p.Close()
	}

	if deps.Fetcher, err = source.NewFetcher(ctx, cfg.Source.URL, cfg.Source.MinSize); err != nil {
		return nil, err
	}
	if deps.Store, err = storage.New(ctx, storageConfig(cfg.Storage)); err != nil {
		closeAll()
		return nil, fmt.Errorf("open store: %w", err)
	}
	if deps.Sink, err = metadata.NewSink(ctx, metadata.CatalogConfig(cfg.Catalog)); err != nil {
		closeAll()
		return nil, fmt.Errorf("open sql sink: %w", err)
	}
	if deps.Audit, err = audit.NewEmitter(audit.Config(cfg.Audit), runID); err != nil {
		closeAll()
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	deps.Metrics = metrics.New("")

	return New(cfg, runID, deps)
}

// RunID returns the id of the run.
func (p *Packager) RunID() string { return p.runID }

// Metrics returns the run's metrics.
func (p *Packager) Metrics() *metrics.Metrics { return p.deps.Metrics }

// Close releases every collaborator and reports the first failure.
func (p *Packager) Close() error {
	var errs []error
	if p.deps.Audit != nil {
		errs = append(errs, p.deps.Audit.Close())
	}
	if p.deps.Sink != nil {
		errs = append(errs, p.deps.Sink.Close())
	}
	if p.deps.Store != nil {
		errs = append(errs, p.deps.Store.Close())
	}
	if p.deps.Fetcher != nil {
		errs = append(errs, p.deps.Fetcher.Close())
	}
	return errors.Join(errs...)
}

// Run executes the stages in order. Context cancellation is checked between
// stages and inside the I/O heavy ones.
func (p *Packager) Run(ctx context.Context) (*Summary, error) {
	ctx = logging.WithRunID(ctx, p.runID)
	sum := newSummary(p.runID)
	p.log.Info("starting run",
		"sources", len(p.deps.Catalog.Sources()),
		"entries", len(p.deps.Catalog.Entries()),
		"cutoff", p.cfg.Run.End,
	)

	err := p.run(ctx, sum)
	sum.Finished = time.Now().UTC()
	elapsed := sum.Finished.Sub(sum.Started)
	p.deps.Metrics.Finish(elapsed, err == nil)
	p.exportMetrics()

	if err != nil {
		p.log.Error("run failed", "error", err, "duration", elapsed.String())
		return sum, err
	}
	p.log.Info("run complete",
		"series_15min", sum.Series[timeseries.Resolution15],
		"series_60min", sum.Series[timeseries.Resolution60],
		"interpolated", sum.Interpolated(),
		"guessed", sum.Guessed(),
		"unpatched", sum.Unpatched(),
		"duration", elapsed.String(),
	)
	return sum, nil
}

func (p *Packager) run(ctx context.Context, sum *Summary) error {
	var datasets map[timeseries.Resolution]*timeseries.Dataset
	if err := p.stage(ctx, "read", func() error {
		var err error
		datasets, err = p.readAll(ctx, sum)
		return err
	}); err != nil {
		return err
	}

	if !p.cfg.Run.End.IsZero() {
		for _, ds := range datasets {
			ds.Truncate(p.cfg.Run.End)
		}
	}

	if err := p.stage(ctx, "scan", func() error {
		return p.scan(datasets, gaps.PassInitial, sum)
	}); err != nil {
		return err
	}

	if err := p.stage(ctx, "repair", func() error {
		return p.repair(ctx, datasets, sum)
	}); err != nil {
		return err
	}

	if err := p.stage(ctx, "aggregate", func() error {
		agg := aggregate.New(aggregateConfig(p.cfg.Repair))
		res, err := agg.Run(ctx, datasets[timeseries.Resolution15], datasets[timeseries.Resolution60])
		sum.Aggregate = res
		return err
	}); err != nil {
		return err
	}

	if err := p.stage(ctx, "rescan", func() error {
		return p.scan(datasets, gaps.PassResidual, sum)
	}); err != nil {
		return err
	}

	for _, res := range timeseries.Resolutions {
		ds := datasets[res]
		sum.Series[res] = ds.Len()
		sum.GridLength[res] = ds.Grid().Len
		p.deps.Metrics.ObserveDataset(ds)
	}

	var objs []storage.Object
	if err := p.stage(ctx, "encode", func() error {
		var err error
		objs, err = p.outputs(datasets, sum)
		if err != nil {
			return err
		}
		v := ValidatePackage(datasets, objs, sum.Checksums)
		for _, w := range v.Warnings {
			p.log.Warn("package check", "warning", w)
		}
		return v.Err()
	}); err != nil {
		return err
	}

	if err := p.stage(ctx, "publish", func() error {
		res, err := storage.Publish(ctx, p.deps.Store, objs, p.cfg.Storage.AllowOverwrite)
		if err != nil {
			return err
		}
		sum.Published = res
		for _, o := range objs {
			p.deps.Metrics.OutputBytes.WithLabelValues(o.Key).Set(float64(len(o.Data)))
		}
		return nil
	}); err != nil {
		return err
	}

	return p.stage(ctx, "sql", func() error {
		return p.writeSQL(ctx, datasets, sum)
	})
}

// stage runs fn after checking ctx and records its duration.
func (p *Packager) stage(ctx context.Context, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	err := fn()
	p.deps.Metrics.ObserveStage(name, time.Since(start))
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	p.log.Debug("stage complete", "stage", name, "duration", time.Since(start).String())
	return nil
}

func (p *Packager) scan(datasets map[timeseries.Resolution]*timeseries.Dataset, pass gaps.Pass, sum *Summary) error {
	for _, res := range timeseries.Resolutions {
		rep, err := gaps.BuildReport(datasets[res], pass)
		if err != nil {
			return fmt.Errorf("%s: %w", res, err)
		}
		sum.Reports = append(sum.Reports, rep)
		p.deps.Metrics.ObserveReport(rep)
		p.log.Info("gap report built",
			"resolution", res,
			"pass", pass,
			"series", len(rep.Labels()),
			"series_with_gaps", rep.SeriesWithGaps(),
			"runs", rep.TotalRuns(),
		)
	}
	return nil
}

func (p *Packager) repair(ctx context.Context, datasets map[timeseries.Resolution]*timeseries.Dataset, sum *Summary) error {
	policy := repairPolicy(p.cfg.Repair)
	if err := policy.Validate(); err != nil {
		return err
	}
	d := repair.NewDispatcher(policy, p.deps.Audit, p.deps.Metrics).
		WithLogger(p.log.With("component", "repair"))

	for _, res := range timeseries.Resolutions {
		rep := sum.Report(res, gaps.PassInitial)
		if rep == nil {
			continue
		}
		result, err := d.Repair(ctx, datasets[res], rep)
		if result != nil {
			sum.Repairs[res] = result
		}
		if err != nil {
			return fmt.Errorf("%s: %w", res, err)
		}
	}
	return nil
}

func (p *Packager) writeSQL(ctx context.Context, datasets map[timeseries.Resolution]*timeseries.Dataset, sum *Summary) error {
	for _, res := range timeseries.Resolutions {
		n, err := p.deps.Sink.WriteDataset(ctx, datasets[res])
		if err != nil {
			return err
		}
		sum.SQLRows += n
	}
	if err := p.deps.Sink.RecordGaps(ctx, p.runID, sum.Reports); err != nil {
		return err
	}

	rec := metadata.RunRecord{
		RunID:           p.runID,
		StartedAt:       sum.Started,
		FinishedAt:      time.Now().UTC(),
		Status:          "complete",
		Series:          make(map[string]int),
		Interpolated:    sum.Interpolated(),
		Guessed:         sum.Guessed(),
		Unpatched:       sum.Unpatched(),
		Checksums:       sum.Checksums,
		ProducerVersion: fmt.Sprintf("%s@%s", ProducerName, p.version()),
	}
	for res, n := range sum.Series {
		rec.Series[string(res)] = n
	}
	return p.deps.Sink.RecordRun(ctx, rec)
}

func (p *Packager) exportMetrics() {
	if path := p.cfg.Metrics.Textfile; p.cfg.Metrics.Enabled && path != "" {
		if err := p.deps.Metrics.WriteTextfile(path); err != nil {
			p.log.Warn("failed to write metrics textfile", "path", path, "error", err)
		}
	}
}

func (p *Packager) version() string {
	if p.cfg.Run.Version != "" {
		return p.cfg.Run.Version
	}
	return Version
}

func repairPolicy(c config.RepairConfig) repair.Policy {
	return repair.Policy{
		InterpolationLimit: c.InterpolationLimit,
		RegionPrefix:       c.RegionPrefix,
		GuessAttribute:     c.GuessAttribute,
		Regions:            c.Regions,
		DayBefore:          c.DayBefore,
	}
}

func aggregateConfig(c config.RepairConfig) aggregate.Config {
	return aggregate.Config{
		Region:     c.Region,
		Regions:    c.Regions,
		Attributes: c.Attributes,
	}
}

func storageConfig(c config.StorageConfig) storage.Config {
	return storage.Config{
		Backend:  c.Backend,
		LocalDir: c.LocalDir,
		Bucket:   c.Bucket,
		Endpoint: c.Endpoint,
		Region:   c.Region,
		Prefix:   c.Prefix,
	}
}
