// Package aggregate derives national totals from regional sub-area series,
// capacity profiles from those totals, and the hourly view of the
// quarter-hourly dataset.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/logging"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/timeseries"
)

var (
	// ErrMissingCapacity is returned when a profile cannot be derived because
	// no capacity series exists for the aggregate region.
	ErrMissingCapacity = errors.New("capacity series missing")

	// ErrNoRegionalSeries is returned when no sub-area publishes the
	// requested variable and attribute.
	ErrNoRegionalSeries = errors.New("no regional series")
)

const (
	// OwnCalculation is the source of every derived series.
	OwnCalculation = "own calculation"

	AttributeGeneration = "generation"
	AttributeCapacity   = "capacity"
	AttributeProfile    = "profile"
)

// Config selects the regions and attributes to aggregate.
type Config struct {
	Region     string   // aggregate region code, e.g. DE
	Regions    []string // sub-areas summed into Region
	Attributes []string // attributes aggregated when present among the sub-areas
}

// DefaultConfig returns the German aggregation.
func DefaultConfig() Config {
	return Config{
		Region:     "DE",
		Regions:    []string{"DE50hertz", "DEamprion", "DEtennet", "DEtransnetbw"},
		Attributes: []string{AttributeCapacity, AttributeGeneration, "forecast"},
	}
}

// Aggregator inserts derived series into datasets.
type Aggregator struct {
	cfg Config
	log *slog.Logger
}

// New returns an Aggregator for cfg.
func New(cfg Config) *Aggregator {
	return &Aggregator{cfg: cfg, log: logging.Component("aggregate")}
}

// Label returns the label of the aggregate of variable and attribute.
func (a *Aggregator) Label(variable, attribute string) timeseries.Label {
	return timeseries.Label{
		Variable:  variable,
		Region:    a.cfg.Region,
		Attribute: attribute,
		Source:    OwnCalculation,
	}
}

// Aggregate sums the regional series of variable and attribute pointwise.
// Missing sub-area values are left out of the sum; a position is missing
// only if every sub-area is missing there.
func (a *Aggregator) Aggregate(ds *timeseries.Dataset, variable, attribute string) (*timeseries.Series, error) {
	idx := timeseries.NewSiblingIndex(ds, a.cfg.Regions)
	regional := idx.Regional(variable, attribute)
	if len(regional) == 0 {
		return nil, fmt.Errorf("aggregate %s/%s: %w", variable, attribute, ErrNoRegionalSeries)
	}
	out := timeseries.NewSeries(a.Label(variable, attribute), ds.Grid().Len)
	for _, s := range regional {
		for i, v := range s.Values {
			if timeseries.IsMissing(v) {
				continue
			}
			if timeseries.IsMissing(out.Values[i]) {
				out.Values[i] = v
			} else {
				out.Values[i] += v
			}
		}
	}
	return out, nil
}

// Insert merges s into ds without overwriting values already present under
// its label. It returns the number of positions filled.
func (a *Aggregator) Insert(ds *timeseries.Dataset, s *timeseries.Series) (int, error) {
	return ds.MergeSeries(s, ds.Grid())
}

// Profile divides the aggregate generation of variable by its capacity.
// Positions where either is missing, or capacity is zero, stay missing.
func (a *Aggregator) Profile(ds *timeseries.Dataset, variable string) (*timeseries.Series, error) {
	gen, ok := ds.Series(a.Label(variable, AttributeGeneration))
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", variable, ErrNoRegionalSeries)
	}
	capacity := a.capacity(ds, variable)
	if capacity == nil {
		return nil, fmt.Errorf("profile %s/%s: %w", variable, a.cfg.Region, ErrMissingCapacity)
	}
	out := timeseries.NewSeries(a.Label(variable, AttributeProfile), ds.Grid().Len)
	for i, g := range gen.Values {
		c := capacity.Values[i]
		if timeseries.IsMissing(g) || timeseries.IsMissing(c) || c == 0 {
			continue
		}
		out.Values[i] = g / c
	}
	return out, nil
}

// capacity prefers the computed aggregate, then any published capacity for
// the aggregate region.
func (a *Aggregator) capacity(ds *timeseries.Dataset, variable string) *timeseries.Series {
	if s, ok := ds.Series(a.Label(variable, AttributeCapacity)); ok {
		return s
	}
	published := ds.Select(func(l timeseries.Label) bool {
		return l.Variable == variable && l.Region == a.cfg.Region && l.Attribute == AttributeCapacity
	})
	if len(published) == 0 {
		return nil
	}
	return published[0]
}

// Result lists what a Run derived.
type Result struct {
	Aggregates []timeseries.Label
	Profiles   []timeseries.Label
	Skipped    map[timeseries.Label]error
	Resampled  int
	Filled     int
}

// Run aggregates every configured attribute present among the sub-areas of
// ds15, derives the generation profiles and resamples ds15 into ds60. It
// must run after repairs, since it reads the patched values.
func (a *Aggregator) Run(ctx context.Context, ds15, ds60 *timeseries.Dataset) (*Result, error) {
	res := &Result{Skipped: make(map[timeseries.Label]error)}
	wanted := make(map[string]bool, len(a.cfg.Attributes))
	for _, attr := range a.cfg.Attributes {
		wanted[attr] = true
	}

	var generation []string
	for _, tech := range timeseries.NewSiblingIndex(ds15, a.cfg.Regions).Techs() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		variable, attribute := tech[0], tech[1]
		if !wanted[attribute] {
			continue
		}
		s, err := a.Aggregate(ds15, variable, attribute)
		if err != nil {
			return res, err
		}
		filled, err := a.Insert(ds15, s)
		if err != nil {
			return res, fmt.Errorf("insert %s: %w", s.Label, err)
		}
		res.Aggregates = append(res.Aggregates, s.Label)
		res.Filled += filled
		a.log.Info("aggregated regional series", "label", s.Label.String(), "filled", filled)
		if attribute == AttributeGeneration {
			generation = append(generation, variable)
		}
	}

	for _, variable := range generation {
		p, err := a.Profile(ds15, variable)
		if err != nil {
			res.Skipped[a.Label(variable, AttributeProfile)] = err
			a.log.Warn("profile skipped", "variable", variable, "error", err)
			continue
		}
		filled, err := a.Insert(ds15, p)
		if err != nil {
			return res, fmt.Errorf("insert %s: %w", p.Label, err)
		}
		res.Profiles = append(res.Profiles, p.Label)
		res.Filled += filled
	}

	if ds60 != nil {
		n, err := Resample(ds15, ds60)
		if err != nil {
			return res, err
		}
		res.Resampled = n
	}
	return res, nil
}
