package retry

import (
	"context"
	"errors"
	"net"
	"time"
)

// Policy is an exponential backoff schedule. Attempts counts the first call.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	Factor    float64
	// Retryable decides whether an error is worth another attempt. Nil means IsTransport.
	Retryable func(error) bool
}

// Default is three attempts at 1s, 2s.
var Default = Policy{Attempts: 3, BaseDelay: time.Second, Factor: 2}

// Delay returns the wait before retry n (0-based).
func (p Policy) Delay(n int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 0; i < n; i++ {
		d *= p.Factor
	}
	return time.Duration(d)
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempts run out. The last error is returned unchanged.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransport
	}

	var err error
	for n := 0; n < attempts; n++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if n == attempts-1 || !retryable(err) || ctx.Err() != nil {
			return err
		}

		timer := time.NewTimer(p.Delay(n))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}

// IsRetryableStatus reports whether an HTTP status is transient: 429 or any 5xx.
func IsRetryableStatus(code int) bool {
	return code == 429 || code >= 500
}

// IsTransport reports whether err is a network-level failure rather than a
// response from the server. Context cancellation is not retryable.
func IsTransport(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
