package repair

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/gaps"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/logging"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/timeseries"
)

// Unpatched reasons.
const (
	ReasonPolicy       = "policy"
	ReasonSiblings     = "insufficient_sibling_data"
	ReasonDivision     = "division_by_zero"
	ReasonUnanchored   = "unanchored"
	ReasonApplyFailure = "apply_failed"
)

// Outcome records what happened to one run.
type Outcome struct {
	Resolution timeseries.Resolution `json:"resolution"`
	Label      timeseries.Label      `json:"label"`
	Run        gaps.Run              `json:"run"`
	Strategy   Strategy              `json:"strategy"`
	Patched    bool                  `json:"patched"`
	Reason     string                `json:"reason,omitempty"`
	Guess      *GuessInfo            `json:"guess,omitempty"`
	Err        error                 `json:"-"`
}

// Recorder receives every outcome, in the order repairs are attempted.
type Recorder interface {
	Record(ctx context.Context, o Outcome) error
}

// Result summarizes one repair pass over a dataset.
type Result struct {
	Outcomes     []Outcome
	Interpolated int
	Guessed      int
	Unpatched    int
}

// UnpatchedOutcomes returns the outcomes whose run remains missing.
func (r *Result) UnpatchedOutcomes() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.Patched {
			out = append(out, o)
		}
	}
	return out
}

// Dispatcher classifies every reported run and applies the repairs in place.
type Dispatcher struct {
	policy    Policy
	recorders []Recorder
	log       *slog.Logger
}

// NewDispatcher returns a dispatcher for policy. Recorders are optional.
func NewDispatcher(policy Policy, recorders ...Recorder) *Dispatcher {
	return &Dispatcher{
		policy:    policy,
		recorders: recorders,
		log:       logging.Component("repair"),
	}
}

// WithLogger replaces the dispatcher's logger.
func (d *Dispatcher) WithLogger(l *slog.Logger) *Dispatcher {
	d.log = l
	return d
}

// Repair handles every run of report against ds. All interpolations are
// applied before any guess, so guesses see interpolated siblings and an
// interpolated day-before window. Failures are kept per run and never stop
// the other series; the returned error is reserved for cancellation and
// broken preconditions.
func (d *Dispatcher) Repair(ctx context.Context, ds *timeseries.Dataset, report *gaps.Report) (*Result, error) {
	g := ds.Grid()
	if err := g.Validate(); err != nil {
		return nil, err
	}
	res := &Result{}
	labels := report.Labels()

	for _, label := range labels {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		s, ok := ds.Series(label)
		if !ok {
			return res, fmt.Errorf("repair: reported series %s is not in the %s dataset", label, ds.Resolution)
		}
		patched := 0
		for _, run := range gaps.Chronological(report.Runs(label)) {
			if d.policy.Classify(run, label) != StrategyInterpolate {
				continue
			}
			o := Outcome{Resolution: ds.Resolution, Label: label, Run: run, Strategy: StrategyInterpolate}
			p, err := Interpolate(s, run)
			if err == nil {
				err = p.Apply(s)
			}
			d.settle(&o, err)
			if o.Patched {
				patched++
			}
			d.record(ctx, res, o)
		}
		if patched > 0 {
			d.seriesLog(label).Info("interpolated short gaps", "resolution", ds.Resolution, "runs", patched)
		}
	}

	idx := timeseries.NewSiblingIndex(ds, d.policy.Regions)
	window := d.policy.WindowSteps(g.Step)
	for _, label := range labels {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		s, _ := ds.Series(label)
		for _, run := range gaps.Chronological(report.Runs(label)) {
			strategy := d.policy.Classify(run, label)
			if strategy == StrategyInterpolate {
				continue
			}
			o := Outcome{Resolution: ds.Resolution, Label: label, Run: run, Strategy: strategy}
			if strategy == StrategyNone {
				o.Reason = ReasonPolicy
				d.record(ctx, res, o)
				continue
			}

			p, info, err := Guess(s, run, idx.Siblings(label), window)
			if err == nil {
				err = p.Apply(s)
			}
			d.settle(&o, err)
			if o.Patched || info.Siblings != nil {
				o.Guess = &info
			}
			d.logGuess(o, info)
			d.record(ctx, res, o)
		}
	}
	return res, nil
}

func (d *Dispatcher) settle(o *Outcome, err error) {
	if err == nil {
		o.Patched = true
		return
	}
	o.Err = err
	switch {
	case errors.Is(err, ErrInsufficientSiblingData):
		o.Reason = ReasonSiblings
	case errors.Is(err, ErrDivisionByZero):
		o.Reason = ReasonDivision
	case errors.Is(err, ErrUnanchored):
		o.Reason = ReasonUnanchored
	default:
		o.Reason = ReasonApplyFailure
	}
}

func (d *Dispatcher) record(ctx context.Context, res *Result, o Outcome) {
	res.Outcomes = append(res.Outcomes, o)
	switch {
	case !o.Patched:
		res.Unpatched++
	case o.Strategy == StrategyInterpolate:
		res.Interpolated++
	case o.Strategy == StrategyGuess:
		res.Guessed++
	}
	for _, r := range d.recorders {
		if err := r.Record(ctx, o); err != nil {
			d.log.Warn("failed to record repair outcome", "label", o.Label.String(), "error", err)
		}
	}
}

func (d *Dispatcher) seriesLog(l timeseries.Label) *slog.Logger {
	return logging.SeriesLogger(d.log, l.Variable, l.Region, l.Attribute, l.Source)
}

func (d *Dispatcher) logGuess(o Outcome, info GuessInfo) {
	l := d.seriesLog(o.Label).With(
		"resolution", o.Resolution,
		"run_start", o.Run.Start,
		"run_length", o.Run.Length,
	)
	if !o.Patched {
		l.Warn("long gap left unpatched", "reason", o.Reason, "error", o.Err)
		return
	}
	attrs := []any{
		"siblings", info.Siblings,
		"factor", info.Factor,
		"last_known", info.LastKnown,
		"next_known", info.NextKnown,
		"first_guess", info.FirstGuess,
	}
	if info.HasDeviation {
		attrs = append(attrs, "deviation", info.Deviation)
	}
	l.Info("guessed long gap from sibling regions", attrs...)
}
