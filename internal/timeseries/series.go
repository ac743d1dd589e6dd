package timeseries

import (
	"fmt"
	"math"
)

// Missing is the value stored for an absent observation.
var Missing = math.NaN()

// IsMissing reports whether v is an absent observation.
func IsMissing(v float64) bool { return math.IsNaN(v) }

// Series holds one value per grid position of its Dataset. Missing values are NaN.
type Series struct {
	Label  Label
	Values []float64
}

// NewSeries returns a series of n missing values.
func NewSeries(label Label, n int) *Series {
	values := make([]float64, n)
	for i := range values {
		values[i] = Missing
	}
	return &Series{Label: label, Values: values}
}

// Clone returns a deep copy.
func (s *Series) Clone() *Series {
	values := make([]float64, len(s.Values))
	copy(values, s.Values)
	return &Series{Label: s.Label, Values: values}
}

// Len returns the number of positions.
func (s *Series) Len() int { return len(s.Values) }

// ValidRange returns the first and last non-missing positions. ok is false
// when the series holds no value at all.
func (s *Series) ValidRange() (first, last int, ok bool) {
	first = -1
	for i, v := range s.Values {
		if !IsMissing(v) {
			first = i
			break
		}
	}
	if first < 0 {
		return 0, 0, false
	}
	for i := len(s.Values) - 1; i >= first; i-- {
		if !IsMissing(s.Values[i]) {
			return first, i, true
		}
	}
	return first, first, true
}

// Complete reports whether every position in [from, to] holds a value.
// Positions outside the series count as missing.
func (s *Series) Complete(from, to int) bool {
	if from < 0 || to >= len(s.Values) || from > to {
		return false
	}
	for _, v := range s.Values[from : to+1] {
		if IsMissing(v) {
			return false
		}
	}
	return true
}

// Sum adds the non-missing values in [from, to], clipped to the series.
func (s *Series) Sum(from, to int) float64 {
	if from < 0 {
		from = 0
	}
	if to >= len(s.Values) {
		to = len(s.Values) - 1
	}
	var total float64
	for i := from; i <= to; i++ {
		if v := s.Values[i]; !IsMissing(v) {
			total += v
		}
	}
	return total
}

// Overwrite replaces the values starting at position start.
func (s *Series) Overwrite(start int, values []float64) error {
	if start < 0 || start+len(values) > len(s.Values) {
		return fmt.Errorf("overwrite %s: range %d+%d outside series of length %d",
			s.Label, start, len(values), len(s.Values))
	}
	copy(s.Values[start:], values)
	return nil
}

// CountMissing returns the number of missing positions.
func (s *Series) CountMissing() int {
	n := 0
	for _, v := range s.Values {
		if IsMissing(v) {
			n++
		}
	}
	return n
}
