package main

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	limiterCleanupInterval = time.Minute
	limiterIdleTTL         = 3 * time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one token bucket per client ip.
type RateLimiter struct {
	logger   *zap.Logger
	clock    TickerClocker
	limit    rate.Limit
	burst    int
	mu       sync.Mutex
	visitors map[string]*visitor
}

func NewRateLimiter(logger *zap.Logger, clock TickerClocker, rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		logger:   logger,
		clock:    clock,
		limit:    rate.Limit(rps),
		burst:    burst,
		visitors: make(map[string]*visitor),
	}
}

// Allow reports whether the client ip may proceed now.
func (rl *RateLimiter) Allow(ip string) bool {
	now := rl.clock.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	c, found := rl.visitors[ip]
	if !found {
		c = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[ip] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// Cleanup evicts idle clients every minute until the context is done.
func (rl *RateLimiter) Cleanup(ctx context.Context) error {
	ticker := rl.clock.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			rl.logger.Info("rate limiter: cleanup stopped", zap.String("reason", ctx.Err().Error()))
			return nil
		case <-ticker.C:
			if n := rl.evict(rl.clock.Now()); n > 0 {
				rl.logger.Debug("rate limiter: idle clients evicted", zap.Int("count", n))
			}
		}
	}
}

func (rl *RateLimiter) evict(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	n := 0
	for ip, c := range rl.visitors {
		if now.Sub(c.lastSeen) > limiterIdleTTL {
			delete(rl.visitors, ip)
			n++
		}
	}
	return n
}
