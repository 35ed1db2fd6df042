package planner

import (
	"errors"
	"fmt"
)

// ErrMissingInput is returned when a required input series is empty. The
// planner refuses to run and no schedule is emitted.
var ErrMissingInput = errors.New("planner: required input series is empty")

// ErrTimeout is returned when the planner exceeds its wall-clock budget.
// No partial schedule is emitted.
var ErrTimeout = errors.New("planner: run exceeded wall-clock budget")

// InvalidScheduleError reports a structurally malformed schedule handed to
// the simulator: mismatched lengths or negative powers. Cap and SoC
// violations are not invalid; they are clamped and recorded instead.
type InvalidScheduleError struct {
	Reason string
}

func (e *InvalidScheduleError) Error() string {
	return fmt.Sprintf("invalid schedule: %s", e.Reason)
}

// InternalError reports an invariant violation inside the planner: negative
// stored energy, SoC outside [0, 100] or a pass changing the slot count.
// It is fatal for the run; InputHash identifies the inputs for reproduction.
type InternalError struct {
	Reason    string
	InputHash string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal planner error: %s (inputs %s)", e.Reason, e.InputHash)
}
