// Package ratelimit keeps one token bucket per key. It throttles index
// rebuilds per transcript and API requests per client address.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/listenupapp/transcript-server/internal/errors"
)

// DefaultIdleTTL is how long an unused key's bucket is kept.
const DefaultIdleTTL = 10 * time.Minute

// Limiter hands out an independent bucket per key. Buckets unused for longer
// than the idle TTL are forgotten, so a returning key starts full.
type Limiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket

	stop     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	tokens   *rate.Limiter
	lastUsed time.Time
}

// New returns a limiter allowing rps events per second per key with the given
// burst. rps <= 0 disables limiting.
func New(rps float64, burst int) *Limiter {
	return NewWithTTL(rps, burst, DefaultIdleTTL)
}

// NewWithTTL is New with a custom idle TTL.
func NewWithTTL(rps float64, burst int, idleTTL time.Duration) *Limiter {
	l := &Limiter{
		limit:   rate.Limit(rps),
		burst:   max(burst, 1),
		idleTTL: idleTTL,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	if rps <= 0 {
		l.limit = rate.Inf
	}
	if l.idleTTL <= 0 {
		l.idleTTL = DefaultIdleTTL
	}

	go l.sweepLoop()
	return l
}

// Allow reports whether key may proceed now, consuming a token if so.
func (l *Limiter) Allow(key string) bool {
	return l.bucketFor(key, time.Now()).Allow()
}

// Check is Allow returning a RATE_LIMITED error for an exhausted transcript id.
func (l *Limiter) Check(transcriptID string) error {
	if l.Allow(transcriptID) {
		return nil
	}
	return errors.RateLimited("transcript "+transcriptID+" was rebuilt too recently").
		WithDetails(map[string]string{"transcript_id": transcriptID})
}

// Len returns the number of keys currently tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Stop ends the sweep goroutine. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) bucketFor(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastUsed = now
	return b.tokens
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.idleTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case now := <-ticker.C:
			l.sweep(now)
		}
	}
}

// sweep forgets buckets idle since before now minus the TTL.
func (l *Limiter) sweep(now time.Time) {
	cutoff := now.Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if b.lastUsed.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}
