package ratelimiter

import (
	"sync"
	"time"
)

// RateLimiter is the interface for rate limiting.
// It defines a single method, Allow, which returns true if a request is allowed,
// and false otherwise.
type RateLimiter interface {
	// Allow returns true if the request is allowed, otherwise returns false.
	Allow() bool
}

// KeyedLimiter keeps one token bucket per key (for example a principal).
type KeyedLimiter struct {
	rate     float64
	capacity int
	now      func() time.Time

	mu      sync.Mutex
	buckets map[string]*TokenBucket
}

func NewKeyedLimiter(rate float64, capacity int) *KeyedLimiter {
	return &KeyedLimiter{
		rate:     rate,
		capacity: capacity,
		now:      time.Now,
		buckets:  make(map[string]*TokenBucket),
	}
}

// Allow consumes one token from key's bucket.
func (k *KeyedLimiter) Allow(key string) bool {
	return k.bucket(key).Allow()
}

// For returns a RateLimiter bound to key.
func (k *KeyedLimiter) For(key string) RateLimiter {
	return k.bucket(key)
}

func (k *KeyedLimiter) bucket(key string) *TokenBucket {
	k.mu.Lock()
	defer k.mu.Unlock()
	b, ok := k.buckets[key]
	if !ok {
		b = newTokenBucket(k.rate, k.capacity, k.now)
		k.buckets[key] = b
	}
	return b
}

// Prune drops buckets that have refilled completely.
func (k *KeyedLimiter) Prune() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	n := 0
	for key, b := range k.buckets {
		if b.Full() {
			delete(k.buckets, key)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (k *KeyedLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}
