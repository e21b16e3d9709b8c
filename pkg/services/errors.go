// Package services contains the session store: persistence, integrity
// checking, and the history operations built on it.
package services

import "errors"

var (
	// ErrNotFound is returned when no session exists under the given id.
	ErrNotFound = errors.New("session not found")

	// ErrCorrupt is returned when a stored record fails its digest check
	// or cannot be decoded.
	ErrCorrupt = errors.New("session record corrupt")

	// ErrUnsupportedVersion is returned when a stored record carries a
	// version this build does not understand.
	ErrUnsupportedVersion = errors.New("unsupported session record version")

	// ErrNotResumable is returned when resume is requested on a session
	// in a terminal state.
	ErrNotResumable = errors.New("session not resumable")

	// ErrIterationOutOfRange is returned when rollback targets an
	// iteration the session never completed.
	ErrIterationOutOfRange = errors.New("iteration out of range")

	// ErrInvalidRecord is returned when a session fails its invariant
	// checks before save.
	ErrInvalidRecord = errors.New("invalid session record")
)
