// Package ratelimit observes per-provider request rates. Unlike a typical
// rate limiter, it never blocks or rejects a call: the orchestration core
// reports what it sees so callers can make their own throttling decisions
// (spec §5/§6 — the core never imposes a built-in rate limit).
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Stats is a snapshot of observed request-rate behavior for one key.
type Stats struct {
	Observed        int64
	LastUpdate      time.Time
	AvailableTokens float64
}

// Observer tracks a token-bucket fill level per key purely for reporting;
// it exposes no Wait/Allow gate. Constructed once per provider or per
// workflow, depending on the granularity the caller wants reported.
type Observer struct {
	rps   float64
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	counts   map[string]int64
	updated  map[string]time.Time
}

// NewObserver builds an Observer modeling a bucket refilling at rps with the
// given burst capacity, purely to compute AvailableTokens for reporting.
func NewObserver(rps float64, burst int) *Observer {
	if rps <= 0 {
		rps = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &Observer{
		rps:      rps,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
		counts:   make(map[string]int64),
		updated:  make(map[string]time.Time),
	}
}

// Record notes one request against key (typically a provider id) and
// returns the updated Stats. It never blocks and never denies: calling
// Record is purely observational bookkeeping.
func (o *Observer) Record(key string) Stats {
	o.mu.Lock()
	defer o.mu.Unlock()

	limiter, ok := o.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(o.rps), o.burst)
		o.limiters[key] = limiter
	}

	// AllowN(n=1) takes one token when one is available, so Tokens() below
	// reflects the fill level after this request. Its result is ignored:
	// an empty bucket only shows up as AvailableTokens near zero, and the
	// request is still counted in the counts map.
	limiter.AllowN(time.Now(), 1)

	o.counts[key]++
	o.updated[key] = time.Now()

	return Stats{
		Observed:        o.counts[key],
		LastUpdate:      o.updated[key],
		AvailableTokens: limiter.Tokens(),
	}
}

// Stats returns the current snapshot for key without recording a request.
func (o *Observer) Stats(key string) Stats {
	o.mu.Lock()
	defer o.mu.Unlock()

	limiter, ok := o.limiters[key]
	if !ok {
		return Stats{}
	}
	return Stats{
		Observed:        o.counts[key],
		LastUpdate:      o.updated[key],
		AvailableTokens: limiter.Tokens(),
	}
}
