package retry

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errTransient = errors.New("transient")

func fastPolicy() Policy {
	return Policy{
		Attempts:  3,
		BaseDelay: time.Millisecond,
		Factor:    2,
		Retryable: func(err error) bool { return errors.Is(err, errTransient) },
	}
}

func TestDelay(t *testing.T) {
	assert.Equal(t, time.Second, Default.Delay(0))
	assert.Equal(t, 2*time.Second, Default.Delay(1))
	assert.Equal(t, 4*time.Second, Default.Delay(2))
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoGivesUp(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	})
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("bad request")
	calls := 0
	err := fastPolicy().Do(context.Background(), func(context.Context) error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDoHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := fastPolicy()
	p.BaseDelay = time.Hour

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, func(context.Context) error {
			calls++
			return errTransient
		})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, errTransient)
		assert.Equal(t, 1, calls)
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancel")
	}
}

func TestIsRetryableStatus(t *testing.T) {
	assert.True(t, IsRetryableStatus(429))
	assert.True(t, IsRetryableStatus(500))
	assert.True(t, IsRetryableStatus(503))
	assert.False(t, IsRetryableStatus(400))
	assert.False(t, IsRetryableStatus(404))
	assert.False(t, IsRetryableStatus(409))
}

func TestIsTransport(t *testing.T) {
	assert.True(t, IsTransport(&net.OpError{Op: "dial", Err: errors.New("connection refused")}))
	assert.False(t, IsTransport(context.Canceled))
	assert.False(t, IsTransport(errors.New("plain")))
	assert.False(t, IsTransport(nil))
}
