package metabase

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Sentinel errors for Metabase client failures.
var (
	// ErrNotFound means the card no longer exists upstream (deleted or archived).
	ErrNotFound = errors.New("metabase card not found")
	// ErrUnavailable covers transport failures, throttling and 5xx responses.
	ErrUnavailable = errors.New("metabase unavailable")
	// ErrTimeout means the request did not complete before its deadline.
	ErrTimeout = errors.New("metabase request timeout")
	// ErrRejected covers 4xx responses that retrying cannot fix.
	ErrRejected = errors.New("metabase request rejected")
)

// IsTransient reports whether a retry might succeed.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout)
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// statusError maps a non-200 response to a sentinel error.
func statusError(path string, code int) error {
	switch {
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: GET %s", ErrNotFound, path)
	case code == http.StatusTooManyRequests || code >= 500:
		return fmt.Errorf("%w: GET %s returned status %d", ErrUnavailable, path, code)
	default:
		return fmt.Errorf("%w: GET %s returned status %d", ErrRejected, path, code)
	}
}
