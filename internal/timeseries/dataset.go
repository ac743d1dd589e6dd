package timeseries

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrDuplicateLabel is returned when inserting a series whose label is taken.
var ErrDuplicateLabel = errors.New("series label already present")

// Dataset is the collection of series of one resolution sharing one Grid.
// It is owned by a single pipeline run and is not safe for concurrent use.
type Dataset struct {
	Resolution Resolution

	grid   Grid
	series map[Label]*Series
}

// NewDataset returns an empty dataset for res.
func NewDataset(res Resolution) *Dataset {
	return &Dataset{
		Resolution: res,
		grid:       Grid{Step: res.Step()},
		series:     make(map[Label]*Series),
	}
}

// Grid returns the shared time grid.
func (d *Dataset) Grid() Grid { return d.grid }

// Len returns the number of series.
func (d *Dataset) Len() int { return len(d.series) }

// Series returns the series stored under label.
func (d *Dataset) Series(label Label) (*Series, bool) {
	s, ok := d.series[label]
	return s, ok
}

// Labels returns all labels in sorted order.
func (d *Dataset) Labels() []Label {
	labels := make([]Label, 0, len(d.series))
	for l := range d.series {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].Less(labels[j]) })
	return labels
}

// All returns every series ordered by label.
func (d *Dataset) All() []*Series {
	out := make([]*Series, 0, len(d.series))
	for _, l := range d.Labels() {
		out = append(out, d.series[l])
	}
	return out
}

// Insert adds a new series aligned to the current grid.
func (d *Dataset) Insert(s *Series) error {
	if _, exists := d.series[s.Label]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateLabel, s.Label)
	}
	if s.Len() != d.grid.Len {
		return fmt.Errorf("insert %s: series length %d does not match grid length %d", s.Label, s.Len(), d.grid.Len)
	}
	d.series[s.Label] = s
	return nil
}

// Reindex moves every series onto g, which must cover the current grid and
// share its step and phase. New positions are missing.
func (d *Dataset) Reindex(g Grid) error {
	if err := g.Validate(); err != nil {
		return err
	}
	if g.Step != d.Resolution.Step() {
		return fmt.Errorf("%w: grid step %s does not match resolution %s", ErrNonUniformGrid, g.Step, d.Resolution)
	}
	if g == d.grid {
		return nil
	}
	offset := 0
	if !d.grid.Empty() {
		i, ok := g.Index(d.grid.Start)
		if !ok || i+d.grid.Len > g.Len {
			return fmt.Errorf("reindex %s: new grid %s..%s does not cover %s..%s",
				d.Resolution, g.Start, g.End(), d.grid.Start, d.grid.End())
		}
		offset = i
	}
	for l, s := range d.series {
		moved := NewSeries(l, g.Len)
		copy(moved.Values[offset:], s.Values)
		d.series[l] = moved
	}
	d.grid = g
	return nil
}

// grow extends the grid so it covers o.
func (d *Dataset) grow(o Grid) error {
	if o.Empty() {
		return nil
	}
	if d.grid.Empty() {
		return d.Reindex(o)
	}
	u, err := d.grid.Union(o)
	if err != nil {
		return err
	}
	return d.Reindex(u)
}

// MergeFrame folds a reader frame into the dataset with combine-first
// semantics: values already present win, missing ones are taken from f.
// Timestamps off the resolution step fail with ErrNonUniformGrid.
func (d *Dataset) MergeFrame(f *Frame) error {
	if f.Len() == 0 {
		return nil
	}
	step := d.Resolution.Step()
	first, last := f.Timestamps[0], f.Timestamps[0]
	for _, t := range f.Timestamps {
		if t.Before(first) {
			first = t
		}
		if t.After(last) {
			last = t
		}
	}
	span, err := NewGrid(first, last, step)
	if err != nil {
		return err
	}
	if !d.grid.Empty() && !d.grid.Aligned(span.Start) {
		return fmt.Errorf("%w: frame starting %s is off the %s grid at %s", ErrNonUniformGrid, first, d.Resolution, d.grid.Start)
	}
	if err := d.grow(span); err != nil {
		return err
	}

	positions := make([]int, len(f.Timestamps))
	for i, t := range f.Timestamps {
		pos, ok := d.grid.Index(t)
		if !ok {
			return fmt.Errorf("%w: timestamp %s is off the %s grid", ErrNonUniformGrid, t, d.Resolution)
		}
		positions[i] = pos
	}

	for _, label := range f.Labels() {
		values := f.Columns[label]
		s, ok := d.series[label]
		if !ok {
			s = NewSeries(label, d.grid.Len)
			d.series[label] = s
		}
		for i, v := range values {
			if IsMissing(v) {
				continue
			}
			if pos := positions[i]; IsMissing(s.Values[pos]) {
				s.Values[pos] = v
			}
		}
	}
	return nil
}

// MergeSeries folds s, laid out on g, into the dataset under s.Label with
// combine-first semantics. Existing values are never overwritten. It returns
// the number of positions that were filled.
func (d *Dataset) MergeSeries(s *Series, g Grid) (int, error) {
	if s.Len() != g.Len {
		return 0, fmt.Errorf("merge %s: series length %d does not match grid length %d", s.Label, s.Len(), g.Len)
	}
	if g.Empty() {
		return 0, nil
	}
	if err := d.grow(g); err != nil {
		return 0, err
	}
	offset, ok := d.grid.Index(g.Start)
	if !ok {
		return 0, fmt.Errorf("%w: series %s is off the %s grid", ErrNonUniformGrid, s.Label, d.Resolution)
	}
	target, exists := d.series[s.Label]
	if !exists {
		target = NewSeries(s.Label, d.grid.Len)
		d.series[s.Label] = target
	}
	filled := 0
	for i, v := range s.Values {
		if IsMissing(v) {
			continue
		}
		if pos := offset + i; IsMissing(target.Values[pos]) {
			target.Values[pos] = v
			filled++
		}
	}
	return filled, nil
}

// Truncate drops every grid position after end.
func (d *Dataset) Truncate(end time.Time) {
	if d.grid.Empty() || !d.grid.End().After(end) {
		return
	}
	n := 0
	if !end.Before(d.grid.Start) {
		n = int(end.Sub(d.grid.Start)/d.grid.Step) + 1
	}
	for _, s := range d.series {
		s.Values = s.Values[:n]
	}
	d.grid.Len = n
}

// Select returns the series matching pred, ordered by label.
func (d *Dataset) Select(pred func(Label) bool) []*Series {
	var out []*Series
	for _, l := range d.Labels() {
		if pred(l) {
			out = append(out, d.series[l])
		}
	}
	return out
}
