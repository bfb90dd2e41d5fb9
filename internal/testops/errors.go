package testops

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors for test-management API failures. Authentication and
// pagination-limit breaches are fatal to a run; the rest are classified by
// the caller.
var (
	ErrAuthentication  = errors.New("test-management authentication failed")
	ErrPaginationLimit = errors.New("pagination safety limit exceeded")
	ErrUnreachable     = errors.New("test-management API unreachable")
	ErrTimeout         = errors.New("test-management API timeout")
)

// APIError is a non-2xx response from the test-management API.
type APIError struct {
	Status   int
	Endpoint string
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d from %s: %s", e.Status, e.Endpoint, e.Body)
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}
