package packager

import (
	"errors"
	"fmt"
	"strings"

	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/storage"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/timeseries"
)

// ErrValidationFailed is returned when the encoded package fails its checks.
var ErrValidationFailed = errors.New("package validation failed")

// ValidationResult contains the outcome of package validation.
type ValidationResult struct {
	Passed   bool
	Errors   []string
	Warnings []string
	Bytes    int64
}

// Err returns nil when the package passed, otherwise the joined errors.
func (r ValidationResult) Err() error {
	if r.Passed {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrValidationFailed, strings.Join(r.Errors, "; "))
}

// ValidatePackage performs quality checks on the package before publish:
//   - every resolution has a dataset whose series match its grid
//   - every object is non-empty, uniquely keyed and checksummed
//   - series without a single value are reported as warnings
func ValidatePackage(datasets map[timeseries.Resolution]*timeseries.Dataset, objs []storage.Object, checksums map[string]string) ValidationResult {
	result := ValidationResult{Passed: true}
	fail := func(format string, args ...any) {
		result.Errors = append(result.Errors, fmt.Sprintf(format, args...))
		result.Passed = false
	}

	for _, res := range timeseries.Resolutions {
		ds, ok := datasets[res]
		if !ok {
			fail("no %s dataset", res)
			continue
		}
		g := ds.Grid()
		if err := g.Validate(); err != nil {
			fail("%s grid: %v", res, err)
			continue
		}
		if g.Step != res.Step() {
			fail("%s grid step is %s", res, g.Step)
		}
		for _, s := range ds.All() {
			if s.Len() != g.Len {
				fail("%s series %s has %d values, grid has %d", res, s.Label, s.Len(), g.Len)
				continue
			}
			if g.Len > 0 && s.CountMissing() == g.Len {
				result.Warnings = append(result.Warnings, fmt.Sprintf("%s series %s has no values", res, s.Label))
			}
		}
	}

	if len(objs) == 0 {
		fail("no output files")
	}
	seen := make(map[string]bool, len(objs))
	for _, o := range objs {
		if seen[o.Key] {
			fail("duplicate output key %s", o.Key)
		}
		seen[o.Key] = true
		if len(o.Data) == 0 {
			fail("empty output %s", o.Key)
		}
		result.Bytes += int64(len(o.Data))

		sum, ok := checksums[o.Key]
		switch {
		case !ok:
			fail("missing checksum for %s", o.Key)
		case !strings.HasPrefix(sum, "sha256:"):
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("checksum for %s may be in non-standard format: %s", o.Key, sum[:min(20, len(sum))]))
		}
	}

	return result
}
