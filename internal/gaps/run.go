// Package gaps detects runs of missing values inside labeled series and
// collects them into per-pass reports.
package gaps

import (
	"fmt"
	"sort"
	"time"

	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/timeseries"
)

// Run is a maximal contiguous span of missing values between the first and
// last observed value of a series.
type Run struct {
	Start      time.Time     `json:"start"`
	End        time.Time     `json:"end"`
	StartIndex int           `json:"start_index"`
	EndIndex   int           `json:"end_index"`
	Length     int           `json:"length"`
	Span       time.Duration `json:"span"`
}

// String renders the run for log lines.
func (r Run) String() string {
	return fmt.Sprintf("%s..%s (%d steps)", r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339), r.Length)
}

// Scan returns the gap runs of s laid out on g, longest first. Leading and
// trailing missing values are absence, not gaps, and are never reported.
func Scan(s *timeseries.Series, g timeseries.Grid) ([]Run, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if s.Len() != g.Len {
		return nil, fmt.Errorf("scan %s: series length %d does not match grid length %d", s.Label, s.Len(), g.Len)
	}
	first, last, ok := s.ValidRange()
	if !ok {
		return nil, nil
	}

	var runs []Run
	start := -1
	for i := first; i <= last; i++ {
		missing := timeseries.IsMissing(s.Values[i])
		switch {
		case missing && start < 0:
			start = i
		case !missing && start >= 0:
			runs = append(runs, newRun(g, start, i-1))
			start = -1
		}
	}

	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].Length != runs[j].Length {
			return runs[i].Length > runs[j].Length
		}
		return runs[i].StartIndex < runs[j].StartIndex
	})
	return runs, nil
}

func newRun(g timeseries.Grid, from, to int) Run {
	start, end := g.At(from), g.At(to)
	span := end.Sub(start) + g.Step
	return Run{
		Start:      start,
		End:        end,
		StartIndex: from,
		EndIndex:   to,
		Length:     int(span / g.Step),
		Span:       span,
	}
}

// Chronological returns a copy of runs ordered by start.
func Chronological(runs []Run) []Run {
	out := make([]Run, len(runs))
	copy(out, runs)
	sort.Slice(out, func(i, j int) bool { return out[i].StartIndex < out[j].StartIndex })
	return out
}
