package models

import "errors"

// Sentinel errors for the expected failure modes of the registry and store.
// Anything not matching these is treated as transient by callers: retry with
// the same cursor, never advance state.
var (
	// ErrNotFound - unknown driver or ticket id. Surfaced, not retried.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyClaimed - a concurrent claim won. The caller should re-poll
	// the open list rather than retry the same claim.
	ErrAlreadyClaimed = errors.New("ticket already claimed")

	// ErrNoActiveTicket - resolve/release with no active ticket for the driver.
	ErrNoActiveTicket = errors.New("no active ticket")

	// ErrInvalidInput - rejected before any store mutation.
	ErrInvalidInput = errors.New("invalid input")
)
