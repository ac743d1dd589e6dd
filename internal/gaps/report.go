package gaps

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/timeseries"
)

// Pass identifies when a report was built.
type Pass string

const (
	// PassInitial is the scan of the data as read.
	PassInitial Pass = "initial"
	// PassResidual is the scan after repair, aggregation and resampling.
	PassResidual Pass = "residual"
)

// Report maps every series label of one dataset to its gap runs, longest
// first. Series without gaps are present with an empty list.
type Report struct {
	Resolution timeseries.Resolution
	Pass       Pass
	Built      time.Time

	runs map[timeseries.Label][]Run
}

// NewReport returns an empty report.
func NewReport(res timeseries.Resolution, pass Pass) *Report {
	return &Report{
		Resolution: res,
		Pass:       pass,
		Built:      time.Now().UTC(),
		runs:       make(map[timeseries.Label][]Run),
	}
}

// BuildReport scans every series of ds.
func BuildReport(ds *timeseries.Dataset, pass Pass) (*Report, error) {
	r := NewReport(ds.Resolution, pass)
	g := ds.Grid()
	for _, s := range ds.All() {
		runs, err := Scan(s, g)
		if err != nil {
			return nil, fmt.Errorf("build %s report for %s: %w", pass, ds.Resolution, err)
		}
		r.Set(s.Label, runs)
	}
	return r, nil
}

// Set records the runs of label, replacing any earlier entry.
func (r *Report) Set(label timeseries.Label, runs []Run) {
	if runs == nil {
		runs = []Run{}
	}
	r.runs[label] = runs
}

// Runs returns the runs recorded for label.
func (r *Report) Runs(label timeseries.Label) []Run {
	return r.runs[label]
}

// Labels returns the reported labels in sorted order.
func (r *Report) Labels() []timeseries.Label {
	labels := make([]timeseries.Label, 0, len(r.runs))
	for l := range r.runs {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].Less(labels[j]) })
	return labels
}

// TotalRuns counts runs across all series.
func (r *Report) TotalRuns() int {
	n := 0
	for _, runs := range r.runs {
		n += len(runs)
	}
	return n
}

// SeriesWithGaps counts series that have at least one run.
func (r *Report) SeriesWithGaps() int {
	n := 0
	for _, runs := range r.runs {
		if len(runs) > 0 {
			n++
		}
	}
	return n
}

// Entry is the serialized form of one series in a report.
type Entry struct {
	Label    timeseries.Label `json:"label"`
	Count    int              `json:"count"`
	Missing  int              `json:"missing_steps"`
	LongestH float64          `json:"longest_hours"`
	Runs     []Run            `json:"runs"`
}

// Entries returns the report as a sorted list.
func (r *Report) Entries() []Entry {
	labels := r.Labels()
	out := make([]Entry, 0, len(labels))
	for _, l := range labels {
		runs := r.runs[l]
		e := Entry{Label: l, Count: len(runs), Runs: runs}
		for _, run := range runs {
			e.Missing += run.Length
			if h := run.Span.Hours(); h > e.LongestH {
				e.LongestH = h
			}
		}
		out = append(out, e)
	}
	return out
}

type reportJSON struct {
	Resolution     timeseries.Resolution `json:"resolution"`
	Pass           Pass                  `json:"pass"`
	Built          time.Time             `json:"built"`
	TotalRuns      int                   `json:"total_runs"`
	SeriesWithGaps int                   `json:"series_with_gaps"`
	Series         []Entry               `json:"series"`
}

// MarshalJSON implements json.Marshaler.
func (r *Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(reportJSON{
		Resolution:     r.Resolution,
		Pass:           r.Pass,
		Built:          r.Built,
		TotalRuns:      r.TotalRuns(),
		SeriesWithGaps: r.SeriesWithGaps(),
		Series:         r.Entries(),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Report) UnmarshalJSON(data []byte) error {
	var raw reportJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = *NewReport(raw.Resolution, raw.Pass)
	r.Built = raw.Built
	for _, e := range raw.Series {
		r.Set(e.Label, e.Runs)
	}
	return nil
}

// Encode writes reports as one indented JSON document.
func Encode(w io.Writer, reports []*Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Reports []*Report `json:"reports"`
	}{reports})
}
