package mcp

import (
	"time"

	"golang.org/x/time/rate"
)

// Limits caps how often the expensive tools may be called. A zero count
// disables the corresponding limit.
type Limits struct {
	SearchPerMinute int
	UploadsPerHour  int
}

// DefaultLimits returns 100 searches per minute and 25 uploads per hour
func DefaultLimits() Limits {
	return Limits{
		SearchPerMinute: 100,
		UploadsPerHour:  25,
	}
}

type limiters struct {
	search *rate.Limiter
	upload *rate.Limiter
}

func newLimiters(l Limits) *limiters {
	return &limiters{
		search: newLimiter(l.SearchPerMinute, time.Minute),
		upload: newLimiter(l.UploadsPerHour, time.Hour),
	}
}

// newLimiter spreads n tokens over per, allowing a burst of n
func newLimiter(n int, per time.Duration) *rate.Limiter {
	if n <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(per/time.Duration(n)), n)
}

// allow takes a token without waiting. When none is available it reports
// how long until one will be.
func allow(l *rate.Limiter) (time.Duration, bool) {
	r := l.Reserve()
	if !r.OK() {
		return 0, false
	}
	delay := r.Delay()
	if delay > 0 {
		r.Cancel()
		return delay, false
	}
	return 0, true
}
