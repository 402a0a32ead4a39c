package commands

import (
	"sync"

	"golang.org/x/time/rate"
)

// GuildLimiter throttles commands per guild with a token bucket each
type GuildLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewGuildLimiter allows perSecond commands per guild with the given burst.
// A non-positive rate disables throttling.
func NewGuildLimiter(perSecond float64, burst int) *GuildLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &GuildLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// Allow reports whether guildID may run a command now
func (l *GuildLimiter) Allow(guildID string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[guildID]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[guildID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// Forget drops the bucket of a guild the bot left
func (l *GuildLimiter) Forget(guildID string) {
	l.mu.Lock()
	delete(l.limiters, guildID)
	l.mu.Unlock()
}
