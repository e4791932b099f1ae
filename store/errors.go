// Package store implements the Salla admin REST client used to read a
// tenant's catalog and apply price updates, together with the error
// classification every caller relies on for retry decisions.
package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// ErrorKind partitions outbound-call failures into the handling classes the
// controller and token ledger act on.
type ErrorKind string

const (
	// KindTransient covers timeouts and 5xx: retry with backoff
	KindTransient ErrorKind = "transient"
	// KindRateLimited covers 429: wait as instructed, never deactivate
	KindRateLimited ErrorKind = "rate_limited"
	// KindAuth covers 401/403: refresh once, deactivate on repeat
	KindAuth ErrorKind = "auth"
	// KindNotFound covers 404: the resource is gone, do not retry
	KindNotFound ErrorKind = "not_found"
	// KindValidation covers 4xx payload rejections: skip, do not retry
	KindValidation ErrorKind = "validation"
)

// APIError is a classified failure from the Salla API
type APIError struct {
	Status     int
	Message    string
	RetryAfter time.Duration // populated from the Retry-After header on 429
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("salla api: status %d: %s", e.Status, e.Message)
}

// Kind maps the HTTP status onto the handling taxonomy
func (e *APIError) Kind() ErrorKind {
	switch {
	case e.Status == http.StatusTooManyRequests:
		return KindRateLimited
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return KindAuth
	case e.Status == http.StatusNotFound:
		return KindNotFound
	case e.Status >= 500:
		return KindTransient
	default:
		return KindValidation
	}
}

// Classify determines the handling class for any outbound-call error.
// Network-level failures (timeouts, refused connections, cancelled contexts)
// classify as transient; unknown errors do too, so they stay inside the
// bounded retry loop instead of killing a run.
func Classify(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}

	return KindTransient
}

// Retryable reports whether a failure of this kind may be retried within the
// same run.
func Retryable(kind ErrorKind) bool {
	return kind == KindTransient || kind == KindRateLimited
}
