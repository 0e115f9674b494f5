// internal/errors/errors.go
package errors

import (
	"fmt"
	"time"
)

// ErrInvalidRepoFormat is returned when a repository identifier is not in 'owner/name' format.
type ErrInvalidRepoFormat struct {
	Repo string
}

func (e *ErrInvalidRepoFormat) Error() string {
	return fmt.Sprintf("invalid repository format: %q, expected 'owner/name'", e.Repo)
}

// TransientRequestError is returned by the GraphQL gateway once every retry attempt
// for a network failure, 5xx response or retriable GraphQL error has been used up.
type TransientRequestError struct {
	StatusCode int
	Attempts   int
	Err        error
}

func (e *TransientRequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient request failure after %d attempt(s) (status %d): %v", e.Attempts, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient request failure after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *TransientRequestError) Unwrap() error { return e.Err }

// PermanentRequestError means the request itself is invalid (bad query, missing
// repository, bad credentials) and retrying it cannot succeed.
type PermanentRequestError struct {
	StatusCode int
	Err        error
}

func (e *PermanentRequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("permanent request failure (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("permanent request failure: %v", e.Err)
}

func (e *PermanentRequestError) Unwrap() error { return e.Err }

// RateLimitedError carries the reset time reported alongside an exhausted budget.
// It is always wrapped in a TransientRequestError once retries run out.
type RateLimitedError struct {
	ResetAt time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exhausted, resets at %s", e.ResetAt.Format(time.RFC3339))
}

// ItemHarvestFailure wraps any error raised while fetching, mapping or persisting a
// single repository. Stage names the step that failed ("parse", "fetch", "persist"
// or "panic").
type ItemHarvestFailure struct {
	FullName string
	Stage    string
	Err      error
}

func (e *ItemHarvestFailure) Error() string {
	return fmt.Sprintf("harvest %s failed at %s: %v", e.FullName, e.Stage, e.Err)
}

func (e *ItemHarvestFailure) Unwrap() error { return e.Err }

// ConfigError is a fatal startup error for a missing or malformed setting.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}
