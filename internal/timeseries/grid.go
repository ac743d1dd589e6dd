package timeseries

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNonUniformGrid is returned when timestamps do not sit on a constant step.
	// All gap arithmetic depends on the step, so callers treat it as fatal.
	ErrNonUniformGrid = errors.New("time grid is not uniform")

	// ErrUnknownResolution is returned for resolution keys other than 15min/60min.
	ErrUnknownResolution = errors.New("unknown resolution")
)

// Resolution is the dataset key and fixed step of its grid.
type Resolution string

const (
	Resolution15 Resolution = "15min"
	Resolution60 Resolution = "60min"
)

// Resolutions lists the supported resolutions, finest first.
var Resolutions = []Resolution{Resolution15, Resolution60}

// ParseResolution validates a resolution key.
func ParseResolution(s string) (Resolution, error) {
	switch Resolution(s) {
	case Resolution15, Resolution60:
		return Resolution(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownResolution, s)
	}
}

// Step returns the grid step of the resolution.
func (r Resolution) Step() time.Duration {
	switch r {
	case Resolution15:
		return 15 * time.Minute
	case Resolution60:
		return time.Hour
	default:
		return 0
	}
}

// Grid is an ordered, gap-free sequence of Len timestamps starting at Start,
// Step apart. The zero Grid is empty.
type Grid struct {
	Start time.Time
	Step  time.Duration
	Len   int
}

// NewGrid builds the grid covering [start, end] inclusive. end must lie on the
// step relative to start.
func NewGrid(start, end time.Time, step time.Duration) (Grid, error) {
	if step <= 0 {
		return Grid{}, fmt.Errorf("%w: step %s", ErrNonUniformGrid, step)
	}
	if end.Before(start) {
		return Grid{}, fmt.Errorf("grid end %s before start %s", end, start)
	}
	span := end.Sub(start)
	if span%step != 0 {
		return Grid{}, fmt.Errorf("%w: %s to %s is not a multiple of %s", ErrNonUniformGrid, start, end, step)
	}
	return Grid{Start: start.UTC(), Step: step, Len: int(span/step) + 1}, nil
}

// GridFromTimestamps checks that ts is strictly increasing on a constant step
// and returns the grid it spans.
func GridFromTimestamps(ts []time.Time, step time.Duration) (Grid, error) {
	if len(ts) == 0 {
		return Grid{Step: step}, nil
	}
	for i := 1; i < len(ts); i++ {
		if d := ts[i].Sub(ts[i-1]); d != step {
			return Grid{}, fmt.Errorf("%w: %s -> %s is %s, want %s", ErrNonUniformGrid, ts[i-1], ts[i], d, step)
		}
	}
	return NewGrid(ts[0], ts[len(ts)-1], step)
}

// Validate reports whether the grid is usable for gap arithmetic.
func (g Grid) Validate() error {
	if g.Step <= 0 {
		return fmt.Errorf("%w: step %s", ErrNonUniformGrid, g.Step)
	}
	if g.Len < 0 {
		return fmt.Errorf("%w: negative length %d", ErrNonUniformGrid, g.Len)
	}
	return nil
}

// Empty reports whether the grid has no timestamps.
func (g Grid) Empty() bool { return g.Len == 0 }

// At returns the timestamp at position i.
func (g Grid) At(i int) time.Time {
	return g.Start.Add(time.Duration(i) * g.Step)
}

// End returns the last timestamp of the grid.
func (g Grid) End() time.Time {
	if g.Len == 0 {
		return g.Start
	}
	return g.At(g.Len - 1)
}

// Index returns the position of t. ok is false if t is off-step or outside.
func (g Grid) Index(t time.Time) (int, bool) {
	i, aligned := g.offset(t)
	if !aligned || i < 0 || i >= g.Len {
		return 0, false
	}
	return i, true
}

// Aligned reports whether t lies on the grid's step, inside or outside it.
func (g Grid) Aligned(t time.Time) bool {
	_, aligned := g.offset(t)
	return aligned
}

func (g Grid) offset(t time.Time) (int, bool) {
	if g.Step <= 0 {
		return 0, false
	}
	d := t.Sub(g.Start)
	if d%g.Step != 0 {
		return 0, false
	}
	return int(d / g.Step), true
}

// Union returns the smallest grid covering g and o. Both grids must share the
// step and phase.
func (g Grid) Union(o Grid) (Grid, error) {
	if g.Empty() {
		return o, nil
	}
	if o.Empty() {
		return g, nil
	}
	if g.Step != o.Step || !g.Aligned(o.Start) {
		return Grid{}, fmt.Errorf("%w: cannot join grid at %s/%s with %s/%s",
			ErrNonUniformGrid, g.Start, g.Step, o.Start, o.Step)
	}
	start, end := g.Start, g.End()
	if o.Start.Before(start) {
		start = o.Start
	}
	if o.End().After(end) {
		end = o.End()
	}
	return NewGrid(start, end, g.Step)
}

// Contains reports whether t is one of the grid's timestamps.
func (g Grid) Contains(t time.Time) bool {
	_, ok := g.Index(t)
	return ok
}
