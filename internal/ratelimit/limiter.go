package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter paces enumeration requests. A zero rate disables it entirely.
type Limiter struct {
	limiter *rate.Limiter
}

// Config contains rate limiting configuration
type Config struct {
	// RequestsPerSecond limits the number of requests per second; zero or less means unlimited
	RequestsPerSecond float64

	// BurstSize allows brief bursts above the rate limit
	BurstSize int
}

// Disabled returns a configuration that never delays requests
func Disabled() Config {
	return Config{}
}

// NewLimiter creates a new rate limiter with the given configuration
func NewLimiter(config Config) *Limiter {
	if config.RequestsPerSecond <= 0 {
		return &Limiter{}
	}
	if config.BurstSize < 1 {
		config.BurstSize = 1
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.BurstSize),
	}
}

// Enabled reports whether Wait can block
func (l *Limiter) Enabled() bool {
	return l != nil && l.limiter != nil
}

// Wait blocks until the rate limiter allows the request
func (l *Limiter) Wait(ctx context.Context) error {
	if !l.Enabled() {
		return ctx.Err()
	}
	return l.limiter.Wait(ctx)
}
