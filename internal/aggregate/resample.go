package aggregate

import (
	"fmt"

	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/timeseries"
)

// Resample averages each hour of every fine series of src and merges the
// hourly series into dst without overwriting values dst already holds. The
// mean is taken over the sub-points present; an hour without any stays
// missing. It returns the number of series merged.
func Resample(src, dst *timeseries.Dataset) (int, error) {
	sg := src.Grid()
	if sg.Empty() {
		return 0, nil
	}
	step := dst.Resolution.Step()
	if step <= sg.Step || step%sg.Step != 0 {
		return 0, fmt.Errorf("%w: cannot resample %s into %s", timeseries.ErrNonUniformGrid, src.Resolution, dst.Resolution)
	}
	coarse, err := timeseries.NewGrid(sg.Start.Truncate(step), sg.End().Truncate(step), step)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, s := range src.All() {
		sums := make([]float64, coarse.Len)
		counts := make([]int, coarse.Len)
		for i, v := range s.Values {
			if timeseries.IsMissing(v) {
				continue
			}
			j := int(sg.At(i).Sub(coarse.Start) / step)
			sums[j] += v
			counts[j]++
		}
		hourly := timeseries.NewSeries(s.Label, coarse.Len)
		for j := range sums {
			if counts[j] > 0 {
				hourly.Values[j] = sums[j] / float64(counts[j])
			}
		}
		if _, err := dst.MergeSeries(hourly, coarse); err != nil {
			return n, fmt.Errorf("resample %s: %w", s.Label, err)
		}
		n++
	}
	return n, nil
}
