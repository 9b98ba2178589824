package backend

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ahrav/go-prism/internal/ports"
)

// Errors returned by the backend client and its middleware.
var (
	// ErrCircuitOpen indicates that the circuit breaker rejected a request
	// without calling the backend.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrUnknownMetric indicates that the backend does not know the metric id.
	ErrUnknownMetric = errors.New("backend does not provide metric")

	// ErrBadRequest indicates that the backend rejected the request inputs.
	ErrBadRequest = errors.New("backend rejected request")
)

// classifyStatus maps a non-2xx HTTP status to a sentinel error so callers
// and the retry middleware can reason about it with errors.Is.
func classifyStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ports.ErrAuthenticationFailed
	case status == http.StatusTooManyRequests:
		return ports.ErrRateLimited
	case status == http.StatusNotFound:
		return ErrUnknownMetric
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ports.ErrTimeout
	case status >= 500:
		return ports.ErrServiceUnavailable
	default:
		return ErrBadRequest
	}
}

// statusError builds the error returned for a non-2xx response.
func statusError(backend, metricID string, resp *http.Response, message string) *ports.BackendCallError {
	err := classifyStatus(resp.StatusCode)
	if message != "" {
		err = &messageError{msg: message, err: err}
	}
	callErr := ports.NewBackendCallError(backend, metricID, err)
	callErr.StatusCode = resp.StatusCode
	if d, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
		callErr.RetryAfter = &d
	}
	return callErr
}

// messageError attaches the backend's error message to a sentinel.
type messageError struct {
	msg string
	err error
}

func (e *messageError) Error() string { return e.err.Error() + ": " + e.msg }
func (e *messageError) Unwrap() error { return e.err }

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(v string) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// isRetryable reports whether err is worth retrying. Circuit breaker
// rejections and caller cancellation never are.
func isRetryable(err error) bool {
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var callErr *ports.BackendCallError
	if errors.As(err, &callErr) {
		return callErr.IsRetryable()
	}
	return errors.Is(err, ports.ErrRateLimited) ||
		errors.Is(err, ports.ErrServiceUnavailable) ||
		errors.Is(err, ports.ErrTimeout)
}

// retryAfter returns the server-requested delay carried by err, if any.
func retryAfter(err error) (time.Duration, bool) {
	var callErr *ports.BackendCallError
	if errors.As(err, &callErr) && callErr.RetryAfter != nil {
		return *callErr.RetryAfter, true
	}
	return 0, false
}
