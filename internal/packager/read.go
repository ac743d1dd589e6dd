package packager

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/catalog"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/source"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/timeseries"
)

// entryResult is what reading one catalog entry produced.
type entryResult struct {
	frames  []*timeseries.Frame
	files   int
	skipped int
	failed  []error
}

// readAll reads every catalog entry with bounded parallelism and merges the
// frames in catalog order, so the first file providing a value wins no
// matter which worker finished first. A file that cannot be parsed is
// logged and left out; listing and fetching failures abort the run.
func (p *Packager) readAll(ctx context.Context, sum *Summary) (map[timeseries.Resolution]*timeseries.Dataset, error) {
	entries := p.deps.Catalog.Entries()
	results := make([]entryResult, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	workers := p.cfg.Source.Workers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)
	for i, e := range entries {
		g.Go(func() error {
			res, err := p.readEntry(gctx, e)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	datasets := make(map[timeseries.Resolution]*timeseries.Dataset, len(timeseries.Resolutions))
	for _, res := range timeseries.Resolutions {
		datasets[res] = timeseries.NewDataset(res)
	}
	for i, e := range entries {
		r := results[i]
		sum.Files += r.files
		sum.Skipped += r.skipped
		for _, err := range r.failed {
			sum.ReadErrors = append(sum.ReadErrors, err.Error())
		}
		ds := datasets[e.Res()]
		for _, f := range r.frames {
			if err := ds.MergeFrame(f); err != nil {
				return nil, fmt.Errorf("merge %s: %w", e.Key(), err)
			}
		}
	}
	return datasets, nil
}

func (p *Packager) readEntry(ctx context.Context, e *catalog.Entry) (entryResult, error) {
	var res entryResult
	log := p.log.With("source", e.Source, "variable", e.Variable)

	objs, err := p.deps.Fetcher.List(ctx, e)
	if err != nil {
		return res, err
	}
	if len(objs) == 0 {
		log.Warn("no raw files found", "prefix", source.Prefix(e))
		return res, nil
	}

	for _, obj := range objs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		file, err := p.deps.Fetcher.Read(ctx, e, obj)
		if errors.Is(err, source.ErrFileTooSmall) {
			log.Info("skipping file, probably empty", "key", obj.Key, "bytes", obj.Size)
			p.deps.Metrics.FilesSkipped.WithLabelValues(e.Source).Inc()
			res.skipped++
			continue
		}
		if err != nil {
			p.deps.Metrics.SourceErrors.WithLabelValues(e.Source).Inc()
			return res, err
		}

		frame, err := source.Read(file)
		if err != nil {
			log.Warn("failed to read file", "key", obj.Key, "error", err)
			p.deps.Metrics.SourceErrors.WithLabelValues(e.Source).Inc()
			res.failed = append(res.failed, err)
			continue
		}
		p.deps.Metrics.FilesRead.WithLabelValues(e.Source).Inc()
		res.files++
		res.frames = append(res.frames, frame)
		log.Debug("file read", "key", obj.Key, "rows", frame.Len())
	}
	return res, nil
}
