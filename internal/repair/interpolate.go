package repair

import (
	"fmt"

	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/gaps"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/timeseries"
)

// Interpolate fills run by linear interpolation between the observed values
// one step before and one step after it. On a uniform grid elapsed time is
// proportional to the position, so the blend is computed on positions.
func Interpolate(s *timeseries.Series, run gaps.Run) (Patch, error) {
	before, after := run.StartIndex-1, run.EndIndex+1
	if before < 0 || after >= s.Len() {
		return Patch{}, fmt.Errorf("interpolate %s at %s: %w", s.Label, run, ErrUnanchored)
	}
	lo, hi := s.Values[before], s.Values[after]
	if timeseries.IsMissing(lo) || timeseries.IsMissing(hi) {
		return Patch{}, fmt.Errorf("interpolate %s at %s: %w", s.Label, run, ErrUnanchored)
	}

	width := float64(after - before)
	values := make([]float64, run.Length)
	for i := range values {
		w := float64(i+1) / width
		values[i] = lo + (hi-lo)*w
	}
	return Patch{Label: s.Label, Run: run, Strategy: StrategyInterpolate, Values: values}, nil
}
