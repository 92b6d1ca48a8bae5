package resilience

import (
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/rotisserie/eris"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit transient", NewTransientError(errors.New("x"), 503), true},
		{"rate limit", NewRateLimitError(errors.New("x"), 0), true},
		{"wrapped transient", eris.Wrap(NewTransientError(errors.New("x"), 500), "outer"), true},
		{"conn reset", syscall.ECONNRESET, true},
		{"string heuristic", errors.New("read tcp: connection reset by peer"), true},
		{"overloaded", errors.New("api error: Overloaded"), true},
		{"permanent", errors.New("invalid request: missing field"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsRateLimit(t *testing.T) {
	if !IsRateLimit(NewRateLimitError(errors.New("x"), time.Second)) {
		t.Error("explicit rate limit not detected")
	}
	if !IsRateLimit(NewTransientError(errors.New("x"), 429)) {
		t.Error("429 transient not detected as rate limit")
	}
	if IsRateLimit(NewTransientError(errors.New("x"), 500)) {
		t.Error("500 misclassified as rate limit")
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504, 529} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected %d transient", code)
		}
	}
	for _, code := range []int{200, 400, 401, 404, 422} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected %d not transient", code)
		}
	}
}

func TestClassifyError(t *testing.T) {
	if got := ClassifyError(NewTransientError(errors.New("x"), 503)); got != "transient" {
		t.Errorf("expected transient, got %s", got)
	}
	if got := ClassifyError(errors.New("schema mismatch")); got != "permanent" {
		t.Errorf("expected permanent, got %s", got)
	}
}
