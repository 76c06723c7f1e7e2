package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// Class buckets an error by how the per-row task should react to it.
type Class string

const (
	// ClassTerminal errors are never retried (malformed request, config
	// mismatch, canceled context).
	ClassTerminal Class = "terminal"
	// ClassTransient errors may be retried with backoff (timeouts, resets,
	// 5xx, 429).
	ClassTransient Class = "transient"
	// ClassNotFound means the upstream has no data for the address. Terminal
	// for the row, but not a fault.
	ClassNotFound Class = "not_found"
)

type Decision struct {
	Class  Class
	Reason string
}

func (d Decision) IsTransient() bool {
	return d.Class == ClassTransient
}

type classifiedError struct {
	err    error
	class  Class
	reason string
}

func (e *classifiedError) Error() string {
	return e.err.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.err
}

// Transient marks err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, class: ClassTransient, reason: "explicit_transient"}
}

// Terminal marks err as non-retryable.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, class: ClassTerminal, reason: "explicit_terminal"}
}

// NotFound marks err as an upstream no-data outcome.
func NotFound(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, class: ClassNotFound, reason: "explicit_not_found"}
}

// Classify decides how the caller should handle err. Explicit markers win;
// otherwise context and transport errors are inspected, then message tokens.
// Unknown errors default to terminal so a misbehaving upstream cannot trap a
// row in a retry loop.
func Classify(err error) Decision {
	if err == nil {
		return Decision{Class: ClassTerminal, Reason: "nil_error"}
	}

	var marked *classifiedError
	if errors.As(err, &marked) {
		return Decision{Class: marked.class, Reason: marked.reason}
	}

	if errors.Is(err, context.Canceled) {
		return Decision{Class: ClassTerminal, Reason: "context_canceled"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Decision{Class: ClassTransient, Reason: "context_deadline_exceeded"}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Decision{Class: ClassTransient, Reason: "net_timeout"}
	}

	lower := strings.ToLower(err.Error())
	if containsAny(lower, notFoundMessageTokens) {
		return Decision{Class: ClassNotFound, Reason: "message_not_found"}
	}
	if containsAny(lower, transientMessageTokens) {
		return Decision{Class: ClassTransient, Reason: "message_transient"}
	}

	return Decision{Class: ClassTerminal, Reason: "unknown_terminal_default"}
}

// Backoff returns the delay before the given retry attempt (1-based),
// doubling from initial and capped at max.
func Backoff(attempt int, initial, max time.Duration) time.Duration {
	if initial <= 0 {
		initial = 200 * time.Millisecond
	}
	if max <= 0 || max < initial {
		max = initial
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		if delay >= max/2 {
			return max
		}
		delay *= 2
	}
	if delay > max {
		return max
	}
	return delay
}

func containsAny(msg string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(msg, token) {
			return true
		}
	}
	return false
}

var transientMessageTokens = []string{
	"timeout",
	"timed out",
	"temporar",
	"unavailable",
	"connection reset",
	"connection refused",
	"broken pipe",
	"econnreset",
	"econnrefused",
	"too many requests",
	"rate limit",
	"http status 429",
	"http status 500",
	"http status 502",
	"http status 503",
	"http status 504",
	"server closed idle connection",
}

var notFoundMessageTokens = []string{
	"http status 404",
	"not found",
}
