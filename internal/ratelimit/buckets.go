package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxLocalBuckets bounds the in-memory map; past it the sweep starts over
const maxLocalBuckets = 1000

// buckets is a process-local token bucket per key
type buckets struct {
	burst int // multiple of the limit

	mu    sync.Mutex
	byKey map[string]*rate.Limiter
}

func newBuckets(burst int) *buckets {
	return &buckets{burst: burst, byKey: make(map[string]*rate.Limiter)}
}

func (b *buckets) take(key string, limit int, period time.Duration) *Result {
	b.mu.Lock()
	lim, ok := b.byKey[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(limit)/period.Seconds()), limit*b.burst)
		b.byKey[key] = lim
	}
	b.mu.Unlock()

	now := time.Now()
	res := &Result{
		Allowed: lim.AllowN(now, 1),
		Limit:   limit,
		ResetAt: now.Add(period),
	}
	if left := int(lim.TokensAt(now)); left > 0 {
		res.Remaining = left
	}
	if !res.Allowed {
		res.RetryAfter = period / time.Duration(limit)
		res.ResetAt = now.Add(res.RetryAfter)
	}
	return res
}

func (b *buckets) reset(key string) {
	b.mu.Lock()
	delete(b.byKey, key)
	b.mu.Unlock()
}

// resetAll drops every bucket and reports how many there were
func (b *buckets) resetAll() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.byKey)
	b.byKey = make(map[string]*rate.Limiter)
	return n
}

// sweep drops every bucket once more than max are tracked
func (b *buckets) sweep(max int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.byKey) <= max {
		return 0
	}
	n := len(b.byKey)
	b.byKey = make(map[string]*rate.Limiter)
	return n
}

func (b *buckets) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byKey)
}
