package table

import (
	"sync"

	"golang.org/x/time/rate"
)

const (
	connectionsPerMinute = 10
	maxConcurrent        = 5
)

// IngressLimiter enforces the per-IP policy from the concurrency model:
// at most connectionsPerMinute new operations per minute (a token-bucket
// approximation of the sliding window) and at most maxConcurrent held
// concurrently. Allow returns a release func to call when the caller's
// operation finishes; ok is false if either bound is currently exceeded.
type IngressLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	inFlight map[string]int
}

func NewIngressLimiter() *IngressLimiter {
	return &IngressLimiter{
		limiters: make(map[string]*rate.Limiter),
		inFlight: make(map[string]int),
	}
}

func (l *IngressLimiter) Allow(ip string) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(connectionsPerMinute)/60, connectionsPerMinute)
		l.limiters[ip] = lim
	}
	if l.inFlight[ip] >= maxConcurrent {
		return nil, false
	}
	if !lim.Allow() {
		return nil, false
	}
	l.inFlight[ip]++
	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.inFlight[ip]--
		if l.inFlight[ip] <= 0 {
			delete(l.inFlight, ip)
		}
	}
	return release, true
}
