package lattice

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports a name or index that matches no element.
	ErrNotFound = errors.New("beamsim: element not found")

	// ErrAmbiguous reports a name shared by several elements where exactly
	// one target is required.
	ErrAmbiguous = errors.New("beamsim: element name is ambiguous")

	// ErrInvalidParam reports a parameter rejected by the element schema.
	ErrInvalidParam = errors.New("beamsim: invalid element parameter")

	// ErrStripperWeights reports a fixed-weight stripper whose weight list
	// disagrees with its charge state list.
	ErrStripperWeights = errors.New("beamsim: stripper weights do not match charge states")
)

// ParameterError describes why a specific element parameter was rejected.
type ParameterError struct {
	Element string
	Kind    Kind
	Key     string
	Reason  string
}

func (e *ParameterError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("element %q (%s): %s", e.Element, e.Kind, e.Reason)
	}
	return fmt.Sprintf("element %q (%s) parameter %q: %s", e.Element, e.Kind, e.Key, e.Reason)
}

func (e *ParameterError) Unwrap() error { return ErrInvalidParam }
