package thing

import (
	"errors"
	"time"

	"github.com/shimmeringbee/wotbind/transport"
)

// Result is the unified message produced by every interaction and every value
// change: one shape for reads, writes, observations, invokes and UI events,
// differing only in Meta["operation"].
type Result struct {
	Payload   any            `json:"payload"`
	Prev      any            `json:"prev,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	OK        bool           `json:"ok"`
	Error     *ResultError   `json:"error,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
}

type ResultError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`

	// Cause retains the underlying error for in-process callers to inspect
	// with errors.Is; it is never serialised.
	Cause error `json:"-"`
}

func SuccessResult(payload any, source string, operation string) Result {
	return Result{
		Payload:   payload,
		Timestamp: time.Now(),
		Source:    source,
		OK:        true,
		Meta:      map[string]any{"operation": operation},
	}
}

func FailedResult(err error, source string, operation string) Result {
	code := 0

	var failure transport.Failure
	if errors.As(err, &failure) {
		code = failure.Code
	}

	return Result{
		Timestamp: time.Now(),
		Source:    source,
		OK:        false,
		Error:     &ResultError{Code: code, Message: err.Error(), Cause: err},
		Meta:      map[string]any{"operation": operation},
	}
}
