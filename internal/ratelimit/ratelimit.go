// Package ratelimit implements fixed-window request budgets for the public
// submission form and the admin login.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrRateLimited = errors.New("rate limited")

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts hits per key within a window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// LimitedError carries the retry hint for a rejected request.
type LimitedError struct {
	RetryAfter time.Duration
}

func (e *LimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %ds", e.RetryAfterSeconds())
}

func (e *LimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfterSeconds rounds up so clients never retry early.
func (e *LimitedError) RetryAfterSeconds() int {
	s := int(math.Ceil(e.RetryAfter.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// Err returns nil when d allows the request, a *LimitedError otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &LimitedError{RetryAfter: d.RetryAfter}
}
