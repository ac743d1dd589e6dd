package repair

import (
	"fmt"

	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/gaps"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/timeseries"
)

// GuessInfo describes how a guess was derived.
type GuessInfo struct {
	Siblings     []string `json:"siblings"`
	WindowFrom   int      `json:"window_from"`
	WindowTo     int      `json:"window_to"`
	SimilarSum   float64  `json:"similar_sum"`
	TargetSum    float64  `json:"target_sum"`
	Factor       float64  `json:"factor"`
	LastKnown    float64  `json:"last_known"`
	NextKnown    float64  `json:"next_known"`
	FirstGuess   float64  `json:"first_guess"`
	Deviation    float64  `json:"deviation"`
	HasDeviation bool     `json:"has_deviation"`
}

// Guess fills run of target with the pointwise sum of the qualifying
// siblings, divided by the ratio of sibling to target totals over the window
// steps preceding the run. A sibling qualifies only if it has no missing
// value over the window and the run. A window reaching before the start of
// the grid has no observed values, so no sibling can qualify.
func Guess(target *timeseries.Series, run gaps.Run, siblings []*timeseries.Series, window int) (Patch, GuessInfo, error) {
	from := run.StartIndex - window
	to := run.StartIndex - 1
	info := GuessInfo{WindowFrom: from, WindowTo: to}
	if window <= 0 {
		return Patch{}, info, fmt.Errorf("guess %s at %s: empty reference window: %w", target.Label, run, ErrInsufficientSiblingData)
	}
	if from < 0 {
		return Patch{}, info, fmt.Errorf("guess %s at %s: reference window starts %d steps before the grid: %w",
			target.Label, run, -from, ErrInsufficientSiblingData)
	}

	var similar []float64
	for _, sib := range siblings {
		if sib.Len() != target.Len() {
			continue
		}
		if !sib.Complete(from, to) || !sib.Complete(run.StartIndex, run.EndIndex) {
			continue
		}
		if similar == nil {
			similar = make([]float64, target.Len())
		}
		for i := from; i <= run.EndIndex; i++ {
			similar[i] += sib.Values[i]
		}
		info.Siblings = append(info.Siblings, sib.Label.Region)
	}
	if similar == nil {
		return Patch{}, info, fmt.Errorf("guess %s at %s: %w", target.Label, run, ErrInsufficientSiblingData)
	}

	for i := from; i <= to; i++ {
		info.SimilarSum += similar[i]
	}
	info.TargetSum = target.Sum(from, to)
	if info.TargetSum == 0 || info.SimilarSum == 0 {
		return Patch{}, info, fmt.Errorf("guess %s at %s: similar %g / target %g: %w",
			target.Label, run, info.SimilarSum, info.TargetSum, ErrDivisionByZero)
	}
	info.Factor = info.SimilarSum / info.TargetSum

	values := make([]float64, run.Length)
	for i := range values {
		values[i] = similar[run.StartIndex+i] / info.Factor
	}

	info.LastKnown = target.Values[run.StartIndex-1]
	if run.EndIndex+1 < target.Len() {
		info.NextKnown = target.Values[run.EndIndex+1]
	}
	info.FirstGuess = values[0]
	if info.LastKnown != 0 && !timeseries.IsMissing(info.LastKnown) {
		info.Deviation = (info.FirstGuess - info.LastKnown) / info.LastKnown
		info.HasDeviation = true
	}

	return Patch{Label: target.Label, Run: run, Strategy: StrategyGuess, Values: values}, info, nil
}
