package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors for analysis backend failures. Rate limiting and
// availability problems are retryable; a malformed response is terminal for
// the cluster because retrying the same prompt rarely changes the shape.
var (
	ErrRateLimited = errors.New("analysis backend rate limited")
	ErrUnavailable = errors.New("analysis backend unavailable")
	ErrBadResponse = errors.New("analysis backend returned malformed response")
)

// IsRetryable reports whether the orchestrator should schedule another
// attempt for this error.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable)
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: timeout: %v", ErrUnavailable, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
