package beam

import "errors"

var (
	// ErrNoChargeStates indicates a state with an empty charge state list
	// where at least one is required.
	ErrNoChargeStates = errors.New("beamsim: no charge states")

	// ErrInvalidState indicates a NaN or Inf crept into beam moments.
	ErrInvalidState = errors.New("beamsim: invalid beam state")
)
