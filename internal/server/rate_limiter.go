// Package server throttles inbound frames per connection with a token bucket
// so one client cannot flood its room.
package server

import "golang.org/x/time/rate"

type rateLimiter struct {
	limiter *rate.Limiter
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	perSecond := cfg.MessagesPerSecond
	if perSecond <= 0 {
		perSecond = defaultMessagesPerSec
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &rateLimiter{limiter: rate.NewLimiter(perSecond, burst)}
}

func (rl *rateLimiter) allow() bool {
	return rl.limiter.Allow()
}
