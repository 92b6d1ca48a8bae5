// Package resilience provides retry, backoff, and circuit breaker support
// for calls against the batch analysis provider and other external services.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
	"time"
)

// ErrRateLimitExhausted is returned when rate-limit retries run out of
// budget. The caller surfaces it rather than retrying further.
var ErrRateLimitExhausted = errors.New("resilience: rate limit retry budget exhausted")

// TransientError wraps an error that is safe to retry (network timeout,
// connection reset, 5xx).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps an error as transient with an optional HTTP
// status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// RateLimitError signals a provider rate-limit response. It is transient,
// but tracked separately so exhaustion surfaces as ErrRateLimitExhausted.
type RateLimitError struct {
	Err        error
	RetryAfter time.Duration // provider hint; zero when absent
}

func (e *RateLimitError) Error() string { return e.Err.Error() }

func (e *RateLimitError) Unwrap() error { return e.Err }

// NewRateLimitError wraps err as a rate-limit signal.
func NewRateLimitError(err error, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{Err: err, RetryAfter: retryAfter}
}

// IsRateLimit reports whether the error chain contains a rate-limit signal.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var te *TransientError
	if errors.As(err, &te) && te.StatusCode == 429 {
		return true
	}
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "rate limit")
}

// IsTransient reports whether the error (or any error in its chain) is safe
// to retry: an explicit TransientError or RateLimitError, a network
// timeout, or a connection-level failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"overloaded",
		"rate limit",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus reports whether an HTTP status code indicates a
// transient server-side issue.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504, 529:
		return true
	default:
		return false
	}
}

// ClassifyError categorizes an error as "transient" or "permanent" for
// audit records.
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}
