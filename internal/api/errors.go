package api

import "errors"

// Backend error taxonomy. Unauthorized triggers a credential refresh,
// NotFound is terminal for the lookup, Conflict means the mutation's
// desired end state already holds, Unavailable is retryable.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not_found")
	ErrConflict     = errors.New("conflict")
	ErrUnavailable  = errors.New("unavailable")
)
