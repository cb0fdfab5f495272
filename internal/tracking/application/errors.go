package application

import "errors"

var (
	// ErrRunNotFound indicates an unknown run id.
	ErrRunNotFound = errors.New("runs: not found")
	// ErrRunFinalized is returned when a finalized run receives
	// further steps.
	ErrRunFinalized = errors.New("runs: already finalized")
	// ErrOutOfOrderStep is returned when a step index does not
	// strictly increase. The driver advances time; the service only
	// checks that it never goes backwards.
	ErrOutOfOrderStep = errors.New("runs: step out of order")
)
