package domain

import "errors"

var (
	// ErrMinimumEventLength is returned when a tracker is constructed
	// with a minimum event length below one.
	ErrMinimumEventLength = errors.New("tracking: minimum event length must be >= 1")
	// ErrScenarioCount is returned when Reset is given a non-positive
	// scenario count.
	ErrScenarioCount = errors.New("tracking: scenario count must be >= 1")
	// ErrNotReset is returned when Advance is called before Reset.
	ErrNotReset = errors.New("tracking: tracker not reset")
	// ErrShapeMismatch is returned when an indicator vector does not
	// match the scenario count. It indicates driver/tracker
	// desynchronization and is never silently padded or truncated.
	ErrShapeMismatch = errors.New("tracking: indicator shape mismatch")
)
