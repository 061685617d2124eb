package errx

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitError indicates the model backend rejected a request because of
// quota exhaustion. It is the only retryable failure in the core.
type RateLimitError struct {
	Err error
	// Hint is the backend's suggested wait, zero when the backend gave none.
	Hint time.Duration
}

func (e *RateLimitError) Error() string {
	if e.Err == nil {
		return "rate limited"
	}
	return fmt.Sprintf("rate limited: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// IsRateLimited reports whether err carries a RateLimitError anywhere in its chain.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// TransportError indicates a non-retryable failure talking to the model
// backend. It aborts the current turn; prior history stays intact.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("chat transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// PreconditionError indicates a tool call was rejected before any network
// activity, e.g. a missing API key or a departure date in the past. The
// dispatcher surfaces it both to the user and to the model.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string { return e.Reason }

// ExternalAPIError indicates an upstream provider failure (HTTP status or an
// error field in the response body). It is never raised out of the dispatcher;
// it becomes an "ERROR:" tool result so the model can recover conversationally.
type ExternalAPIError struct {
	Provider string
	Err      error
}

func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ExternalAPIError) Unwrap() error { return e.Err }
