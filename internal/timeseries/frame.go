package timeseries

import (
	"sort"
	"time"
)

// Frame is the uniform output of a source reader: a set of labeled columns
// sharing one list of timestamps. Timestamps need not be contiguous; steps
// absent from the frame become missing values once merged into a Dataset.
type Frame struct {
	Timestamps []time.Time
	Columns    map[Label][]float64
}

// NewFrame returns an empty frame.
func NewFrame() *Frame {
	return &Frame{Columns: make(map[Label][]float64)}
}

// Labels returns the frame's labels in sorted order.
func (f *Frame) Labels() []Label {
	labels := make([]Label, 0, len(f.Columns))
	for l := range f.Columns {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].Less(labels[j]) })
	return labels
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.Timestamps) }

// Truncate drops every row after end.
func (f *Frame) Truncate(end time.Time) {
	n := sort.Search(len(f.Timestamps), func(i int) bool { return f.Timestamps[i].After(end) })
	if n == len(f.Timestamps) {
		return
	}
	f.Timestamps = f.Timestamps[:n]
	for l, values := range f.Columns {
		f.Columns[l] = values[:n]
	}
}
