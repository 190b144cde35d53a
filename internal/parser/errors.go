package parser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrNotFound is returned by stores when a task or product does not exist.
var ErrNotFound = errors.New("not found")

// FetchError describes a failed fetch. Retryable decides whether the worker
// may attempt the same page again.
type FetchError struct {
	URL        string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: http %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewHTTPStatusError classifies a non-2xx response: 5xx and 429 are
// retryable, other 4xx are not.
func NewHTTPStatusError(url string, status int) *FetchError {
	retryable := status >= 500 || status == http.StatusTooManyRequests
	return &FetchError{URL: url, StatusCode: status, Retryable: retryable}
}

// NewTransportError classifies a transport-level failure. Timeouts are
// retryable, context cancellation is not.
func NewTransportError(url string, err error) *FetchError {
	retryable := true
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		retryable = errors.Is(err, context.DeadlineExceeded)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && !netErr.Timeout() {
		retryable = true
	}
	return &FetchError{URL: url, Retryable: retryable, Err: err}
}

// ChallengeError marks an anti-bot or captcha page. Never auto-retried.
type ChallengeError struct {
	URL    string
	Marker string
}

func (e *ChallengeError) Error() string {
	return fmt.Sprintf("challenge detected at %s: %s", e.URL, e.Marker)
}

// ParseError describes a single-page extraction failure. The page is
// skipped and the task continues.
type ParseError struct {
	URL    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.URL, e.Reason)
}

// ValidationError rejects invalid submission parameters synchronously,
// before a task is created.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ExportError rejects an unsupported export format synchronously.
type ExportError struct {
	Format string
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("unsupported export format %q", e.Format)
}

// IsRetryable reports whether the worker may retry the fetch that produced
// err. Challenge detections are terminal by definition.
func IsRetryable(err error) bool {
	var challenge *ChallengeError
	if errors.As(err, &challenge) {
		return false
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Retryable
	}
	return false
}
