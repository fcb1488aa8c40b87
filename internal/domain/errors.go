package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrDuplicatePosition = errors.New("position already exists for market")
	// ErrContextUnavailable wraps persistence failures of the shared trading
	// context so callers can distinguish "admission denied" from "could not
	// consult the ledger" and retry or skip the cycle instead of trading on
	// permissive defaults.
	ErrContextUnavailable = errors.New("trading context unavailable")
	ErrLockHeld           = errors.New("lock already held")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidOrder       = errors.New("invalid order parameters")
	ErrSigningFailed      = errors.New("signing failed")
	ErrWSDisconnect       = errors.New("websocket disconnected")
)
