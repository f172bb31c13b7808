package domain

import "errors"

var (
	// ErrPreconditionFailed indicates a command was issued against a session
	// that is not in the expected state. No side effects are applied.
	ErrPreconditionFailed = errors.New("session precondition failed")
	// ErrSessionNotFound is returned when no session exists for the agent/day.
	ErrSessionNotFound = errors.New("session not found")
	// ErrUnknownActivity is returned for activity types outside the catalog.
	ErrUnknownActivity = errors.New("unknown activity type")
)
