package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LimiterPool holds one token bucket per caller key (user id once
// authenticated, client IP before that). Idle entries are evicted.
type LimiterPool struct {
	mu            sync.Mutex
	m             map[string]*limiterEntry
	rps           float64
	burst         int
	ttl           time.Duration
	cleanupPeriod time.Duration
	startCleanup  sync.Once
	stop          chan struct{}
	stopOnce      sync.Once
}

type limiterEntry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

func NewLimiterPool(rps float64, burst int) *LimiterPool {
	if rps <= 0 {
		rps = 50
	}
	if burst <= 0 {
		burst = 100
	}
	return &LimiterPool{
		m:             make(map[string]*limiterEntry),
		rps:           rps,
		burst:         burst,
		ttl:           10 * time.Minute,
		cleanupPeriod: time.Minute,
		stop:          make(chan struct{}),
	}
}

func (p *LimiterPool) get(key string) *rate.Limiter {
	p.startCleanup.Do(func() { go p.cleanupLoop() })

	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.m[key]; ok {
		e.lastSeen = time.Now()
		return e.l
	}
	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.m[key] = &limiterEntry{l: l, lastSeen: time.Now()}
	return l
}

// Allow takes one token from key's bucket without waiting.
func (p *LimiterPool) Allow(key string) bool {
	return p.get(key).Allow()
}

func (p *LimiterPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

func (p *LimiterPool) evict(cutoff time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, e := range p.m {
		if e.lastSeen.Before(cutoff) {
			delete(p.m, k)
		}
	}
}

func (p *LimiterPool) cleanupLoop() {
	ticker := time.NewTicker(p.cleanupPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.evict(time.Now().Add(-p.ttl))
		case <-p.stop:
			return
		}
	}
}

func (p *LimiterPool) Close() {
	p.stopOnce.Do(func() { close(p.stop) })
}
