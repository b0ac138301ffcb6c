package track

import (
	"errors"
	"fmt"
)

// ErrRange reports an invalid element range for a run.
var ErrRange = errors.New("beamsim: invalid run range")

// Warning is a non-fatal condition raised while propagating one element.
// Warnings accumulate in the run result and never stop tracking.
type Warning struct {
	Index   int
	Element string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("element %d (%s): %s", w.Index, w.Element, w.Message)
}

// RunError wraps a fatal propagation failure with its lattice location.
type RunError struct {
	Index   int
	Element string
	Err     error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("element %d (%s): %v", e.Index, e.Element, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
