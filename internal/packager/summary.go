package packager

import (
	"time"

	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/aggregate"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/gaps"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/metadata"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/repair"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/storage"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/timeseries"
)

// Summary is what a run did, stage by stage.
type Summary struct {
	RunID    string
	Started  time.Time
	Finished time.Time

	Files      int
	Skipped    int
	ReadErrors []string

	Series     map[timeseries.Resolution]int
	GridLength map[timeseries.Resolution]int

	Reports   []*gaps.Report
	Repairs   map[timeseries.Resolution]*repair.Result
	Aggregate *aggregate.Result

	Checksums  map[string]string
	Descriptor *metadata.Descriptor
	Published  *storage.PublishResult
	SQLRows    int64
}

func newSummary(runID string) *Summary {
	return &Summary{
		RunID:      runID,
		Started:    time.Now().UTC(),
		Series:     make(map[timeseries.Resolution]int),
		GridLength: make(map[timeseries.Resolution]int),
		Repairs:    make(map[timeseries.Resolution]*repair.Result),
		Checksums:  make(map[string]string),
	}
}

// Report returns the gap report of res built in pass, or nil.
func (s *Summary) Report(res timeseries.Resolution, pass gaps.Pass) *gaps.Report {
	for _, r := range s.Reports {
		if r.Resolution == res && r.Pass == pass {
			return r
		}
	}
	return nil
}

// Interpolated returns the number of runs interpolated across resolutions.
func (s *Summary) Interpolated() int {
	n := 0
	for _, r := range s.Repairs {
		n += r.Interpolated
	}
	return n
}

// Guessed returns the number of runs guessed across resolutions.
func (s *Summary) Guessed() int {
	n := 0
	for _, r := range s.Repairs {
		n += r.Guessed
	}
	return n
}

// Unpatched returns the number of runs left missing across resolutions.
func (s *Summary) Unpatched() int {
	n := 0
	for _, r := range s.Repairs {
		n += r.Unpatched
	}
	return n
}
