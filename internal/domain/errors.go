package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job id is not in the registry.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobTerminal is returned when a transition is attempted out of a
	// terminal state.
	ErrJobTerminal = errors.New("job is in a terminal state")

	// ErrUnknownFormat is returned when the detector cannot classify a file.
	// It is a terminal, non-retryable condition for that file.
	ErrUnknownFormat = errors.New("unknown file format")

	// ErrNoRecords is returned when extraction produced nothing usable.
	ErrNoRecords = errors.New("no valid property records found")
)
