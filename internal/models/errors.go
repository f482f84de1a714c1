package models

import "errors"

// Error kinds shared across the engine. Callers test with errors.Is; the
// wrapped message carries the cause summary and any remediation hint.
var (
	// ErrConfiguration covers missing credentials, invalid backup targets
	// and similar problems fatal at operation entry.
	ErrConfiguration = errors.New("configuration error")

	// ErrTransient covers provider timeouts, HTTP 429/5xx and temporary
	// database locks. Batch operations skip and continue.
	ErrTransient = errors.New("transient error")

	// ErrPermanent covers HTTP 401/403, malformed responses and schema
	// mismatches. Surfaced, never retried.
	ErrPermanent = errors.New("permanent error")

	// ErrIntegrity covers constraint violations on store writes.
	ErrIntegrity = errors.New("integrity error")

	// ErrValidation covers user input failing field rules.
	ErrValidation = errors.New("validation error")

	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("not found")
)
