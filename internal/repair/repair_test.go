package repair

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/gaps"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/timeseries"
)

var (
	nan   = timeseries.Missing
	start = time.Date(2016, 6, 1, 0, 0, 0, 0, time.UTC)
)

// day is the 24h reference window in 15 minute steps.
const day = 96

func gen(region string) timeseries.Label {
	return timeseries.Label{Variable: "wind", Region: region, Attribute: "generation", Source: region}
}

// dataset builds a 15 minute dataset from equally long columns.
func dataset(t *testing.T, cols map[timeseries.Label][]float64) *timeseries.Dataset {
	t.Helper()
	ds := timeseries.NewDataset(timeseries.Resolution15)
	f := timeseries.NewFrame()
	for _, values := range cols {
		for i := range values {
			f.Timestamps = append(f.Timestamps, start.Add(time.Duration(i)*15*time.Minute))
		}
		break
	}
	for l, v := range cols {
		f.Columns[l] = v
	}
	if err := ds.MergeFrame(f); err != nil {
		t.Fatalf("MergeFrame failed: %v", err)
	}
	return ds
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func withGap(values []float64, from, to int) []float64 {
	out := append([]float64(nil), values...)
	for i := from; i <= to; i++ {
		out[i] = nan
	}
	return out
}

func repair(t *testing.T, ds *timeseries.Dataset, recorders ...Recorder) *Result {
	t.Helper()
	report, err := gaps.BuildReport(ds, gaps.PassInitial)
	if err != nil {
		t.Fatalf("BuildReport failed: %v", err)
	}
	res, err := NewDispatcher(DefaultPolicy(), recorders...).Repair(context.Background(), ds, report)
	if err != nil {
		t.Fatalf("Repair failed: %v", err)
	}
	return res
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestClassify(t *testing.T) {
	p := DefaultPolicy()
	run := func(steps int) gaps.Run {
		return gaps.Run{Length: steps, Span: time.Duration(steps) * 15 * time.Minute}
	}
	tests := []struct {
		name  string
		run   gaps.Run
		label timeseries.Label
		want  Strategy
	}{
		{"short regional", run(7), gen("DE50hertz"), StrategyInterpolate},
		{"exactly two hours", run(8), gen("DEtennet"), StrategyInterpolate},
		{"short load", run(2), timeseries.Label{Variable: "load", Region: "PL", Attribute: "load"}, StrategyInterpolate},
		{"long regional generation", run(9), gen("DEamprion"), StrategyGuess},
		{"long national generation", run(20), gen("DE"), StrategyGuess},
		{"long regional forecast", run(20), timeseries.Label{Variable: "wind", Region: "DEtennet", Attribute: "forecast"}, StrategyNone},
		{"long foreign generation", run(20), gen("DKw"), StrategyNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Classify(tt.run, tt.label); got != tt.want {
				t.Errorf("Classify = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPolicyValidate(t *testing.T) {
	p := DefaultPolicy()
	if err := p.Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}
	p.Regions = nil
	if err := p.Validate(); err == nil {
		t.Error("expected error for empty sibling set")
	}
	p = DefaultPolicy()
	p.DayBefore = 0
	if err := p.Validate(); err == nil {
		t.Error("expected error for zero window")
	}
	if got := DefaultPolicy().WindowSteps(15 * time.Minute); got != 96 {
		t.Errorf("WindowSteps(15m) = %d, want 96", got)
	}
}

func TestInterpolate(t *testing.T) {
	s := &timeseries.Series{Label: gen("DEtennet"), Values: []float64{0, nan, nan, 3, 4}}
	p, err := Interpolate(s, gaps.Run{StartIndex: 1, EndIndex: 2, Length: 2})
	if err != nil {
		t.Fatalf("Interpolate failed: %v", err)
	}
	if !near(p.Values[0], 1) || !near(p.Values[1], 2) {
		t.Errorf("values = %v, want [1 2]", p.Values)
	}
	if !timeseries.IsMissing(s.Values[1]) {
		t.Error("Interpolate must not modify the series")
	}
	if err := p.Apply(s); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if s.Values[2] != 2 {
		t.Errorf("series after apply = %v", s.Values)
	}
}

func TestInterpolate_Unanchored(t *testing.T) {
	s := &timeseries.Series{Label: gen("DEtennet"), Values: []float64{nan, nan, 1}}
	_, err := Interpolate(s, gaps.Run{StartIndex: 0, EndIndex: 1, Length: 2})
	if !errors.Is(err, ErrUnanchored) {
		t.Fatalf("expected ErrUnanchored, got %v", err)
	}
}

func TestRepair_ShortGapInterpolates(t *testing.T) {
	label := gen("DE50hertz")
	ds := dataset(t, map[timeseries.Label][]float64{
		label: {10, 10, nan, nan, nan, nan, nan, 10},
	})
	res := repair(t, ds)
	if res.Interpolated != 1 || res.Unpatched != 0 {
		t.Fatalf("result = %+v", res)
	}
	s, _ := ds.Series(label)
	for i, v := range s.Values {
		if v != 10 {
			t.Errorf("position %d = %v, want 10", i, v)
		}
	}

	// Re-scan of a series that had only short gaps finds nothing.
	runs, err := gaps.Scan(s, ds.Grid())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("residual runs: %v", runs)
	}
}

func TestRepair_LongGapGuess(t *testing.T) {
	// 24h reference window, a 5h gap, one observed step after it.
	n := day + 20 + 1
	target := gen("DE50hertz")
	ds := dataset(t, map[timeseries.Label][]float64{
		target:          withGap(constant(n, 10), day, day+19),
		gen("DEamprion"): constant(n, 20),
		gen("DEtennet"):  constant(n, 30),
	})
	res := repair(t, ds)
	if res.Guessed != 1 || res.Unpatched != 0 {
		t.Fatalf("result = %+v", res)
	}
	o := res.Outcomes[0]
	if o.Guess == nil || !near(o.Guess.Factor, 5) {
		t.Fatalf("guess info = %+v", o.Guess)
	}
	if !o.Guess.HasDeviation || !near(o.Guess.Deviation, 0) {
		t.Errorf("deviation = %v", o.Guess.Deviation)
	}
	s, _ := ds.Series(target)
	for i := day; i <= day+19; i++ {
		if !near(s.Values[i], 10) {
			t.Errorf("position %d = %v, want 10", i, s.Values[i])
		}
	}
}

func TestGuess_ScalingConservation(t *testing.T) {
	// 4h gap after a full 24h reference window.
	n := day + 16 + 1
	targetValues := make([]float64, n)
	a := make([]float64, n)
	b := make([]float64, n)
	for i := 0; i < n; i++ {
		targetValues[i] = float64(1 + i%3)
		a[i] = float64(5 + i)
		b[i] = float64(2 * (i + 1))
	}
	target := &timeseries.Series{Label: gen("DEtennet"), Values: withGap(targetValues, day, day+15)}
	siblings := []*timeseries.Series{
		{Label: gen("DEamprion"), Values: a},
		{Label: gen("DEtransnetbw"), Values: b},
	}
	run := gaps.Run{StartIndex: day, EndIndex: day + 15, Length: 16}

	p, info, err := Guess(target, run, siblings, day)
	if err != nil {
		t.Fatalf("Guess failed: %v", err)
	}
	var S, T float64
	for i := 0; i < day; i++ {
		S += a[i] + b[i]
		T += targetValues[i]
	}
	if info.WindowFrom != 0 || info.WindowTo != day-1 {
		t.Errorf("window = [%d,%d]", info.WindowFrom, info.WindowTo)
	}
	if !near(info.Factor, S/T) {
		t.Errorf("factor = %v, want %v", info.Factor, S/T)
	}
	for k, v := range p.Values {
		i := run.StartIndex + k
		if want := (a[i] + b[i]) / (S / T); !near(v, want) {
			t.Errorf("guess at %d = %v, want %v", i, v, want)
		}
	}
}

func TestGuess_WindowBeforeGrid(t *testing.T) {
	// Only 8 observed steps precede the 5h gap.
	n := 8 + 20 + 1
	target := &timeseries.Series{Label: gen("DE50hertz"), Values: withGap(constant(n, 10), 8, 27)}
	siblings := []*timeseries.Series{
		{Label: gen("DEamprion"), Values: constant(n, 20)},
		{Label: gen("DEtennet"), Values: constant(n, 30)},
	}
	run := gaps.Run{StartIndex: 8, EndIndex: 27, Length: 20}

	_, info, err := Guess(target, run, siblings, day)
	if !errors.Is(err, ErrInsufficientSiblingData) {
		t.Fatalf("expected ErrInsufficientSiblingData, got %v", err)
	}
	if info.WindowFrom != 8-day {
		t.Errorf("window from = %d, want %d", info.WindowFrom, 8-day)
	}
}

func TestRepair_WindowBeforeGrid(t *testing.T) {
	n := 8 + 20 + 1
	target := gen("DE50hertz")
	ds := dataset(t, map[timeseries.Label][]float64{
		target:          withGap(constant(n, 10), 8, 27),
		gen("DEamprion"): constant(n, 20),
		gen("DEtennet"):  constant(n, 30),
	})
	res := repair(t, ds)
	if res.Guessed != 0 || res.Unpatched != 1 {
		t.Fatalf("result = %+v", res)
	}
	o := res.UnpatchedOutcomes()[0]
	if o.Strategy != StrategyGuess || o.Reason != ReasonSiblings {
		t.Errorf("outcome = %+v", o)
	}
	s, _ := ds.Series(target)
	if s.CountMissing() != 20 {
		t.Errorf("target missing = %d, want 20", s.CountMissing())
	}
}

func TestGuess_SkipsIncompleteSiblings(t *testing.T) {
	n := day + 20
	target := &timeseries.Series{Label: gen("DEtennet"), Values: withGap(constant(n, 10), day, day+15)}
	complete := &timeseries.Series{Label: gen("DEamprion"), Values: constant(n, 40)}
	holeInWindow := &timeseries.Series{Label: gen("DE50hertz"), Values: withGap(constant(n, 1000), 50, 50)}
	holeInRun := &timeseries.Series{Label: gen("DEtransnetbw"), Values: withGap(constant(n, 1000), day+5, day+5)}
	run := gaps.Run{StartIndex: day, EndIndex: day + 15, Length: 16}

	p, info, err := Guess(target, run, []*timeseries.Series{complete, holeInWindow, holeInRun}, day)
	if err != nil {
		t.Fatalf("Guess failed: %v", err)
	}
	if len(info.Siblings) != 1 || info.Siblings[0] != "DEamprion" {
		t.Errorf("siblings = %v", info.Siblings)
	}
	if !near(p.Values[0], 10) {
		t.Errorf("guess = %v, want 10", p.Values[0])
	}
}

func TestRepair_InsufficientSiblingData(t *testing.T) {
	n := day + 20
	target := gen("DEtennet")
	ds := dataset(t, map[timeseries.Label][]float64{
		target:          withGap(constant(n, 10), day, day+15),
		gen("DEamprion"): withGap(constant(n, 20), day+1, day+10),
	})
	res := repair(t, ds)

	var o *Outcome
	for i := range res.Outcomes {
		if res.Outcomes[i].Label == target {
			o = &res.Outcomes[i]
		}
	}
	if o == nil || o.Patched || o.Reason != ReasonSiblings || !errors.Is(o.Err, ErrInsufficientSiblingData) {
		t.Fatalf("outcome = %+v", o)
	}
	s, _ := ds.Series(target)
	if s.CountMissing() != 16 {
		t.Errorf("target missing = %d, want 16", s.CountMissing())
	}
}

func TestRepair_DivisionByZero(t *testing.T) {
	n := day + 20
	target := gen("DEtennet")
	values := withGap(constant(n, 0), day, day+15)
	ds := dataset(t, map[timeseries.Label][]float64{
		target:          values,
		gen("DEamprion"): constant(n, 20),
	})
	res := repair(t, ds)
	if res.Unpatched != 1 {
		t.Fatalf("result = %+v", res)
	}
	o := res.UnpatchedOutcomes()[0]
	if o.Reason != ReasonDivision || !errors.Is(o.Err, ErrDivisionByZero) {
		t.Errorf("outcome = %+v", o)
	}
}

func TestRepair_PolicyLeavesLongGap(t *testing.T) {
	label := timeseries.Label{Variable: "load", Region: "DE", Attribute: "load", Source: "ENTSO-E"}
	ds := dataset(t, map[timeseries.Label][]float64{
		label: withGap(constant(20, 5), 2, 15),
	})
	res := repair(t, ds)
	if res.Unpatched != 1 || res.Outcomes[0].Reason != ReasonPolicy || res.Outcomes[0].Strategy != StrategyNone {
		t.Fatalf("result = %+v", res)
	}
}

func TestRepair_InterpolationBeforeGuess(t *testing.T) {
	n := day + 20
	target := gen("DEtennet")
	ds := dataset(t, map[timeseries.Label][]float64{
		target: withGap(constant(n, 10), day, day+15),
		// A short hole inside the target's run is interpolated first, so
		// the sibling qualifies for the guess.
		gen("DEamprion"): withGap(constant(n, 30), day+5, day+6),
	})
	res := repair(t, ds)
	if res.Interpolated != 1 || res.Guessed != 1 || res.Unpatched != 0 {
		t.Fatalf("result = %+v", res)
	}
	s, _ := ds.Series(target)
	if !near(s.Values[day+5], 10) {
		t.Errorf("guess at gap = %v, want 10", s.Values[day+5])
	}
}

type countingRecorder struct {
	outcomes []Outcome
	fail     bool
}

func (c *countingRecorder) Record(_ context.Context, o Outcome) error {
	c.outcomes = append(c.outcomes, o)
	if c.fail {
		return errors.New("sink unavailable")
	}
	return nil
}

func TestRepair_Recorders(t *testing.T) {
	ok := &countingRecorder{}
	broken := &countingRecorder{fail: true}
	ds := dataset(t, map[timeseries.Label][]float64{
		gen("DE50hertz"): {1, nan, 1, nan, nan, 1},
	})
	res := repair(t, ds, ok, broken)
	if len(ok.outcomes) != 2 || len(broken.outcomes) != 2 {
		t.Fatalf("recorded %d / %d outcomes", len(ok.outcomes), len(broken.outcomes))
	}
	if res.Interpolated != 2 {
		t.Errorf("interpolated = %d", res.Interpolated)
	}
}

func TestRepair_Cancelled(t *testing.T) {
	ds := dataset(t, map[timeseries.Label][]float64{gen("DE50hertz"): {1, nan, 1}})
	report, _ := gaps.BuildReport(ds, gaps.PassInitial)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewDispatcher(DefaultPolicy()).Repair(ctx, ds, report); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
