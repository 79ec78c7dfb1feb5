package reconciler

import "errors"

// Fatal errors abort the whole call. Per-identity and per-role failures
// are counted in the result instead.
var (
	// ErrSchemaUnavailable means the target schema could not be ensured.
	ErrSchemaUnavailable = errors.New("schema unavailable")

	// ErrConnectionFailure means no usable database connection could be
	// obtained. Retryable by the caller.
	ErrConnectionFailure = errors.New("connection failure")

	// ErrNoDefinitions means no role definition matches the target
	// database and schema.
	ErrNoDefinitions = errors.New("no role definitions found")
)
