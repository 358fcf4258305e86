package chrome

import (
	"fmt"
	"time"
)

// retryBackoff is the fixed delay between attempts of waitUntil and between
// polls of WaitForSelector and the liveness monitor.
const retryBackoff = 500 * time.Millisecond

// waitUntil repeatedly invokes fn until it succeeds or timeout elapses.
// Per-attempt errors are swallowed; they only mean "not yet". On timeout the
// result depends on raise: a Timeout error naming op, or the zero value with
// a nil error so callers can treat a missed wait as "not found".
//
// This is the only retry mechanism in the package. It blocks the calling
// goroutine; run it off the main flow if that is a problem.
func waitUntil[T any](op string, timeout time.Duration, raise bool, fn func() (T, error)) (T, error) {
	deadline := time.Now().Add(timeout)
	for {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(retryBackoff)
	}

	var zero T
	if raise {
		return zero, fmt.Errorf("%w: %s did not complete within %s", ErrTimeout, op, timeout)
	}
	return zero, nil
}
