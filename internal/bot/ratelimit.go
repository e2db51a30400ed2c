package bot

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const slowDown = "Slow down! Too many questions in a short time, please try again in a minute."

// RateLimiter caps how many questions each conversation may ask per window.
// Each conversation gets a bucket of max tokens refilled evenly over window.
type RateLimiter struct {
	mu      sync.Mutex
	every   rate.Limit
	burst   int
	buckets map[string]*rate.Limiter
	now     func() time.Time
}

// NewRateLimiter returns nil when max or window is not positive, which
// disables limiting.
func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	if max <= 0 || window <= 0 {
		return nil
	}
	return &RateLimiter{
		every:   rate.Every(window / time.Duration(max)),
		burst:   max,
		buckets: make(map[string]*rate.Limiter),
		now:     time.Now,
	}
}

// Allow spends one token for conversationID.
func (l *RateLimiter) Allow(conversationID string) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[conversationID]
	if !ok {
		b = rate.NewLimiter(l.every, l.burst)
		l.buckets[conversationID] = b
	}
	return b.AllowN(l.now(), 1)
}

// Sweep forgets conversations whose bucket has refilled, since a fresh
// bucket behaves the same.
func (l *RateLimiter) Sweep() int {
	if l == nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for id, b := range l.buckets {
		if b.TokensAt(now) >= float64(l.burst) {
			delete(l.buckets, id)
			removed++
		}
	}
	return removed
}

func (l *RateLimiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
