package notifier

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket limiting notifications on one channel.
type RateLimiter struct {
	limiter *rate.Limiter
	config  RateLimitConfig
	dropped atomic.Int64
}

// RateLimitConfig holds rate limiter configuration.
type RateLimitConfig struct {
	MaxPerWindow int           // Maximum notifications per window (default: 30)
	Window       time.Duration // Time window (default: 1 minute)
	Enabled      bool          // Whether rate limiting is enabled
}

// DefaultRateLimitConfig returns default rate limit settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxPerWindow: 30,
		Window:       time.Minute,
		Enabled:      true,
	}
}

// NewRateLimiter creates a new rate limiter with the given configuration.
// The bucket holds MaxPerWindow tokens and refills evenly over Window.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.MaxPerWindow <= 0 {
		config.MaxPerWindow = 30
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}

	limit := rate.Inf
	if config.Enabled {
		limit = rate.Every(config.Window / time.Duration(config.MaxPerWindow))
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(limit, config.MaxPerWindow),
		config:  config,
	}
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		r.dropped.Add(1)
		return err
	}
	return nil
}

// Stats returns rate limiter statistics.
func (r *RateLimiter) Stats() RateLimitStats {
	return RateLimitStats{
		Dropped:      r.dropped.Load(),
		Available:    r.limiter.Tokens(),
		MaxPerWindow: r.config.MaxPerWindow,
		Window:       r.config.Window,
		Enabled:      r.config.Enabled,
	}
}

// RateLimitStats contains rate limiter statistics.
type RateLimitStats struct {
	Dropped      int64         // Total notifications refused
	Available    float64       // Tokens currently available
	MaxPerWindow int           // Maximum allowed per window
	Window       time.Duration // Window duration
	Enabled      bool          // Whether rate limiting is enabled
}
