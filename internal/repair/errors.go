package repair

import "errors"

var (
	// ErrInsufficientSiblingData is returned when no sibling series is complete
	// over the day before a run and the run itself.
	ErrInsufficientSiblingData = errors.New("insufficient sibling data")

	// ErrDivisionByZero is returned when the scaling factor of a guess is
	// degenerate: the target or its siblings summed to zero over the day before.
	ErrDivisionByZero = errors.New("division by zero in scaling factor")

	// ErrUnanchored is returned when a run to interpolate is not bounded by
	// observed values on both sides.
	ErrUnanchored = errors.New("run is not bounded by observed values")
)
