package domain

import "errors"

var (
	// ErrPoolNotFound is returned when a category has no valid questions after every lookup strategy.
	ErrPoolNotFound = errors.New("no quiz available")
	// ErrTransientFetch is returned when every lookup failed with a store error; callers may retry.
	ErrTransientFetch = errors.New("question fetch failed")
	// ErrInvalidTransition indicates the caller drove the session out of order.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrPersistence wraps result sink failures. It is logged, never surfaced to the player.
	ErrPersistence = errors.New("result persistence failed")
	// ErrSessionNotFound is returned when a quiz session has not been initialized.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrInvalidCatalog indicates a question catalog file could not be used.
	ErrInvalidCatalog = errors.New("invalid question catalog")
)
