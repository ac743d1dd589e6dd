// Package repair decides how each gap run is handled and fills the runs it can:
// short runs by linear interpolation, long runs of regional generation by
// scaling the sum of sibling regions to the target's recent magnitude.
package repair

import (
	"fmt"
	"strings"
	"time"

	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/gaps"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/timeseries"
)

// Strategy is the repair chosen for a run.
type Strategy string

const (
	StrategyInterpolate Strategy = "interpolate"
	StrategyGuess       Strategy = "guess"
	StrategyNone        Strategy = "none"
)

// Policy holds the classification thresholds.
type Policy struct {
	// InterpolationLimit is the longest run span that is interpolated.
	InterpolationLimit time.Duration
	// RegionPrefix selects the regions eligible for guessing.
	RegionPrefix string
	// GuessAttribute is the only attribute eligible for guessing.
	GuessAttribute string
	// Regions are the regional sub-areas whose series serve as siblings.
	Regions []string
	// DayBefore is the reference window preceding a run.
	DayBefore time.Duration
}

// DefaultPolicy returns the policy used for the German transmission areas.
func DefaultPolicy() Policy {
	return Policy{
		InterpolationLimit: 2 * time.Hour,
		RegionPrefix:       "DE",
		GuessAttribute:     "generation",
		Regions:            []string{"DE50hertz", "DEamprion", "DEtennet", "DEtransnetbw"},
		DayBefore:          24 * time.Hour,
	}
}

// Validate checks the policy for values that make classification meaningless.
func (p Policy) Validate() error {
	if p.InterpolationLimit <= 0 {
		return fmt.Errorf("interpolation limit must be positive, got %s", p.InterpolationLimit)
	}
	if p.DayBefore <= 0 {
		return fmt.Errorf("day-before window must be positive, got %s", p.DayBefore)
	}
	if len(p.Regions) == 0 {
		return fmt.Errorf("at least one sibling region is required")
	}
	return nil
}

// Classify picks the strategy for run of the series labeled label. Short runs
// always interpolate, whatever the series.
func (p Policy) Classify(run gaps.Run, label timeseries.Label) Strategy {
	switch {
	case run.Span <= p.InterpolationLimit:
		return StrategyInterpolate
	case strings.HasPrefix(label.Region, p.RegionPrefix) && label.Attribute == p.GuessAttribute:
		return StrategyGuess
	default:
		return StrategyNone
	}
}

// WindowSteps converts the day-before window to grid steps.
func (p Policy) WindowSteps(step time.Duration) int {
	if step <= 0 {
		return 0
	}
	return int(p.DayBefore / step)
}

// Patch is the set of values that fills one run.
type Patch struct {
	Label    timeseries.Label
	Run      gaps.Run
	Strategy Strategy
	Values   []float64 // one value per run position
}

// Apply writes the patch into s.
func (p Patch) Apply(s *timeseries.Series) error {
	if len(p.Values) != p.Run.Length {
		return fmt.Errorf("patch %s: %d values for run of length %d", p.Label, len(p.Values), p.Run.Length)
	}
	return s.Overwrite(p.Run.StartIndex, p.Values)
}
