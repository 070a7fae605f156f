package metric

import (
	"errors"
	"fmt"
)

// UpstreamError reports a metric provider failure. Transient failures may be
// retried; permanent ones will fail the same way again.
type UpstreamError struct {
	Transient  bool
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("metric provider %s failure (status %d): %v", kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("metric provider %s failure: %v", kind, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func NewTransientError(err error, statusCode int) *UpstreamError {
	return &UpstreamError{Transient: true, StatusCode: statusCode, Err: err}
}

func NewPermanentError(err error, statusCode int) *UpstreamError {
	return &UpstreamError{Transient: false, StatusCode: statusCode, Err: err}
}

// IsTransient returns true if err carries a transient UpstreamError.
func IsTransient(err error) bool {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Transient
	}
	return false
}

// IsUpstream returns true if err came from the metric provider.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

func isTransientStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
