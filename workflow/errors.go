// errors.go - Workflow error kinds. Everything here is inspectable data
// for the caller; nothing aborts the process.
package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrCalculationTimeout: the fan-out exceeded its deadline. The whole
	// run is discarded; the operator should retry with a smaller store
	// selection.
	ErrCalculationTimeout = errors.New("calculation timed out")

	// ErrInvalidTransition: the requested step is not legal from the
	// current state.
	ErrInvalidTransition = errors.New("invalid workflow transition")

	// ErrNoSelection: advancing out of Select without a CEDI and at
	// least one destination store.
	ErrNoSelection = errors.New("no CEDI or stores selected")

	// ErrNotCalculated: conflict or review data requested before the
	// calculation has completed.
	ErrNotCalculated = errors.New("calculation has not completed")
)

// TransitionError reports an illegal wizard step.
type TransitionError struct {
	From State
	Op   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s from state %q", e.Op, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
