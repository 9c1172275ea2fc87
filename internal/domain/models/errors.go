package models

import "errors"

// Recoverable error kinds. None of them stops a scheduler loop.
var (
	ErrDataUnavailable     = errors.New("data unavailable")
	ErrInsufficientSamples = errors.New("insufficient samples")
	ErrPersistence         = errors.New("persistence failure")
	ErrStaleResult         = errors.New("stale result")
)

// Rule engine errors surfaced to callers.
var (
	ErrUnknownRule     = errors.New("unknown rule")
	ErrCheckInProgress = errors.New("rule check already in progress")
	ErrAlertNotFound   = errors.New("alert not found")
)
