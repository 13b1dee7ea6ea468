package httpclient

import (
	"errors"
	"testing"
	"time"
)

func TestRetryableError_Error(t *testing.T) {
	err := &RetryableError{StatusCode: 429, Message: "max retries (3) exceeded", RetryAfter: 5 * time.Second}
	want := "HTTP 429: max retries (3) exceeded (retry after 5s)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestRetryableError_ErrorNoRetryAfter(t *testing.T) {
	err := &RetryableError{StatusCode: 500, Message: "server error"}
	want := "HTTP 500: server error"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestRetryableError_Unwrap(t *testing.T) {
	inner := errors.New("connection reset")
	err := &RetryableError{Err: inner}
	if !errors.Is(err, inner) {
		t.Error("Unwrap did not expose the inner error")
	}
}

func TestRetryableError_IsRetryable(t *testing.T) {
	if !(&RetryableError{}).IsRetryable() {
		t.Error("IsRetryable() = false, want true")
	}
}
