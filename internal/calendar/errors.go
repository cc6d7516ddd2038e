package calendar

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/api/googleapi"
)

// ErrorKind labels a backend failure for reporting.
type ErrorKind string

const (
	KindTimeout          ErrorKind = "timeout"
	KindRateLimited      ErrorKind = "rate_limited"
	KindUnavailable      ErrorKind = "unavailable"
	KindPermissionDenied ErrorKind = "permission_denied"
	KindNotFound         ErrorKind = "not_found"
	KindBadRequest       ErrorKind = "bad_request"
	KindUnauthorized     ErrorKind = "unauthorized"
	KindUnknown          ErrorKind = "unknown"
)

// BackendError wraps a remote failure with its classification. Retryable
// errors may be retried by the dispatch caller with backoff; non-retryable
// errors are surfaced to the user as-is. Dispatch itself never retries.
type BackendError struct {
	Kind      ErrorKind
	Retryable bool
	Err       error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error (%s, retryable=%t): %v", e.Kind, e.Retryable, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// ClassifyError maps a raw backend failure into a BackendError. Timeouts,
// rate limits, and 5xx responses are retryable; permission, not-found, and
// malformed-request failures are not.
func ClassifyError(err error) *BackendError {
	if err == nil {
		return nil
	}

	var berr *BackendError
	if errors.As(err, &berr) {
		return berr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &BackendError{Kind: KindTimeout, Retryable: true, Err: err}
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &BackendError{Kind: KindTimeout, Retryable: true, Err: err}
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return classifyStatus(gerr.Code, err)
	}

	// Remaining failures are almost always transport-level (DNS, reset
	// connections) and worth a retry.
	return &BackendError{Kind: KindUnavailable, Retryable: true, Err: err}
}

func classifyStatus(status int, err error) *BackendError {
	switch {
	case status == 401:
		return &BackendError{Kind: KindUnauthorized, Retryable: false, Err: err}
	case status == 403:
		return &BackendError{Kind: KindPermissionDenied, Retryable: false, Err: err}
	case status == 404:
		return &BackendError{Kind: KindNotFound, Retryable: false, Err: err}
	case status == 408:
		return &BackendError{Kind: KindTimeout, Retryable: true, Err: err}
	case status == 429:
		return &BackendError{Kind: KindRateLimited, Retryable: true, Err: err}
	case status >= 500:
		return &BackendError{Kind: KindUnavailable, Retryable: true, Err: err}
	case status >= 400:
		return &BackendError{Kind: KindBadRequest, Retryable: false, Err: err}
	default:
		return &BackendError{Kind: KindUnknown, Retryable: false, Err: err}
	}
}
