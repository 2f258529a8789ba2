// Package retry provides exponential backoff and bounded polling for
// resources that become consistent some time after a write.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net"
	"strings"
	"time"
)

// Default policy values.
const (
	DefaultMaxAttempts = 6
	DefaultBaseDelay   = 250 * time.Millisecond
	DefaultMaxDelay    = 4 * time.Second
	DefaultJitter      = 0.2
)

// ErrExhausted is returned by Poll when every attempt was spent.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Policy bounds a polling loop.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
}

// DefaultPolicy returns the package defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Jitter:      DefaultJitter,
	}
}

// Delay calculates the delay for a given retry attempt using exponential
// backoff with jitter.
func Delay(baseDelay, maxDelay time.Duration, jitter float64, attempt int) time.Duration {
	delay := float64(baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}
	if jitter > 0 {
		jitterFactor := 1 - jitter + rand.Float64()*2*jitter
		delay *= jitterFactor
	}
	return time.Duration(delay)
}

// Poll calls check until it reports done, returns a permanent error, the
// context ends or MaxAttempts calls have been made. Errors from check are
// treated as "not yet" when IsTransientError holds, and returned otherwise.
// On exhaustion the last transient error, if any, is joined to ErrExhausted.
func Poll(ctx context.Context, p Policy, check func(context.Context) (bool, error)) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	var last error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		done, err := check(ctx)
		switch {
		case err == nil && done:
			return nil
		case err != nil && !IsTransientError(err):
			return err
		}
		last = err

		if attempt == p.MaxAttempts-1 {
			break
		}
		t := time.NewTimer(Delay(p.BaseDelay, p.MaxDelay, p.Jitter, attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	if last != nil {
		return errors.Join(ErrExhausted, last)
	}
	return ErrExhausted
}

// IsTransientError returns true if the error is likely transient and worth
// retrying. This includes network timeouts, connection refused, connection
// reset, etc.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	var te interface{ Transient() bool }
	if errors.As(err, &te) {
		return te.Transient()
	}

	transientPatterns := []string{
		"connection refused",
		"connection reset",
		"connection timed out",
		"timeout",
		"temporary failure",
		"no route to host",
		"network is unreachable",
		"i/o timeout",
		"eof",
		"broken pipe",
		"connection closed",
	}
	lowerErr := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(lowerErr, pattern) {
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
