// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package errs collects the typed sentinel errors shared across the core
// subsystems: errors.Is-comparable package-level sentinels rather than ad
// hoc strings.
package errs

import "errors"

var (
	// ErrDuplicatePendingApproval is returned when an approval creation
	// would violate the at-most-one-pending-per-(user,content_key)
	// invariant and no expired duplicate exists to reuse.
	ErrDuplicatePendingApproval = errors.New("approval: a pending request already exists for this user and content")

	// ErrStatusDowngrade is returned when a watchlist status update would
	// move backward on the pending->requested->grabbed->notified DAG.
	ErrStatusDowngrade = errors.New("watchlist: status downgrade is forbidden")

	// ErrUnknownColumn is returned by router rule CRUD when a caller
	// attempts to update a column outside the whitelisted set.
	ErrUnknownColumn = errors.New("store: unknown or non-whitelisted column")

	// ErrQuotaExceeded is returned when an acquisition would exceed a
	// user's quota and the user does not bypass approval for that
	// content type.
	ErrQuotaExceeded = errors.New("quota: limit exceeded")

	// ErrUnsafeRegex is returned when a rule's regex operator value fails
	// the catastrophic-backtracking safety check. Callers must treat this
	// as "evaluates to false with a warning", never propagate it mid
	// evaluation.
	ErrUnsafeRegex = errors.New("routing: regex pattern rejected as unsafe")

	// ErrNoMatchingRule is returned by callers that require a match (the
	// engine itself falls back to the default instance instead of
	// returning this).
	ErrNoMatchingRule = errors.New("routing: no rule matched and no default instance configured")

	// ErrNotFound is a generic not-found sentinel for store lookups.
	ErrNotFound = errors.New("store: record not found")

	// ErrImmutableSystemUser is returned when a caller attempts to delete
	// or mutate the reserved System user (id 0).
	ErrImmutableSystemUser = errors.New("store: the system user cannot be deleted or reassigned")

	// ErrTerminalApproval is returned when a caller attempts to transition
	// an already-terminal approval request.
	ErrTerminalApproval = errors.New("approval: request is already in a terminal state")

	// ErrInvalidCron is returned by the scheduler when a cron expression
	// fails to parse.
	ErrInvalidCron = errors.New("scheduler: invalid cron expression")

	// ErrInvalidInterval is returned when an interval job config carries
	// no positive unit.
	ErrInvalidInterval = errors.New("scheduler: interval requires at least one positive unit")

	// ErrDuplicateJobName is returned when a scheduled job name collides
	// with an existing one.
	ErrDuplicateJobName = errors.New("scheduler: job name must be unique")

	// ErrJobOverlap is returned by RunNow when a run is already in flight
	// and the caller asked to be told rather than silently merged.
	ErrJobOverlap = errors.New("scheduler: a run is already in flight for this job")

	// ErrInvalidInstanceDefaults is returned when a non-default instance
	// carries synced instances, or more than one default exists per
	// target type.
	ErrInvalidInstanceDefaults = errors.New("store: invalid downstream instance configuration")

	// ErrEmptyResponseBody is raised by the streaming helpers when an
	// upstream response body is empty where content was expected.
	ErrEmptyResponseBody = errors.New("client: response body is empty")

	// ErrPermanentHTTP wraps a non-retryable 4xx response (anything other
	// than 408/429). Callers can unwrap to inspect the status code via
	// errors.As on *HTTPStatusError.
	ErrPermanentHTTP = errors.New("client: permanent http error")

	// ErrTransientExhausted is returned when the retry budget for a
	// transient error class is exhausted.
	ErrTransientExhausted = errors.New("client: retries exhausted")
)

// HTTPStatusError carries the concrete status code and server-provided
// message (stripped of protocol prefixes) for a permanent 4xx failure, so
// callers can surface the server's own text verbatim.
type HTTPStatusError struct {
	StatusCode int
	Message    string
}

func (e *HTTPStatusError) Error() string {
	if e.Message == "" {
		return ErrPermanentHTTP.Error()
	}
	return e.Message
}

func (e *HTTPStatusError) Unwrap() error {
	return ErrPermanentHTTP
}
