package filc

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	// ErrAgentTimeout means the agent did not answer before the deadline.
	ErrAgentTimeout = errors.New("filc: agent request timed out")

	// ErrAgentUnreachable means the connection could not be established.
	ErrAgentUnreachable = errors.New("filc: agent unreachable")

	// ErrStreamInterrupted means a stream died after some chunks were
	// already delivered; consumers must treat prior chunks as partial.
	ErrStreamInterrupted = errors.New("filc: stream interrupted")
)

// StatusError carries a non-2xx agent response. 4xx responses are never
// retried; 5xx responses are.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("filc: agent returned status %d: %s", e.StatusCode, e.Body)
}

// IsClientError reports whether the status is a 4xx the caller must fix.
func (e *StatusError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsRetryable reports whether err is worth another attempt: transport
// failures and 5xx/429 statuses are, 4xx client errors are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return IsRetryableStatusCode(statusErr.StatusCode)
	}
	// Transport-level failures (refused, reset, DNS, timeout) are retryable.
	return true
}

// IsRetryableStatusCode checks if an HTTP status code should trigger a retry
// Retryable codes: 408 (Timeout), 429 (Rate Limit), 5xx (Server errors)
func IsRetryableStatusCode(statusCode int) bool {
	return statusCode == 408 || statusCode == 429 || statusCode >= 500
}

// IsTimeoutError checks if the error is a timeout-related error
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "context deadline exceeded") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "i/o timeout")
}

// classifyTransportError folds a raw transport error into the sentinel the
// router branches on.
func classifyTransportError(err error) error {
	if IsTimeoutError(err) {
		return fmt.Errorf("%w: %v", ErrAgentTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrAgentUnreachable, err)
}
