package capture

import (
	"sync"
	"time"
)

// Health is the capture condition of one feed.
type Health string

const (
	Healthy  Health = "healthy"
	Degraded Health = "degraded"
	Failed   Health = "failed"
)

// feedHealth tracks consecutive capture failures for a feed. The feed
// goroutine records; /healthz reads, hence the lock.
type feedHealth struct {
	mu          sync.Mutex
	failures    int
	total       int
	lastErr     string
	lastFailure time.Time
	threshold   int
}

func newFeedHealth(threshold int) *feedHealth {
	return &feedHealth{threshold: threshold}
}

func (h *feedHealth) recordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = 0
}

// recordFailure returns the consecutive failure count including this one.
func (h *feedHealth) recordFailure(err error) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures++
	h.total++
	h.lastErr = err.Error()
	h.lastFailure = time.Now()
	return h.failures
}

// statusLocked computes health status. Caller must hold h.mu.
func (h *feedHealth) statusLocked() Health {
	switch {
	case h.failures >= h.threshold:
		return Failed
	case h.failures > 0:
		return Degraded
	}
	return Healthy
}

// snapshot returns a consistent copy of the health fields.
func (h *feedHealth) snapshot() (status Health, failures, total int, lastErr string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.statusLocked(), h.failures, h.total, h.lastErr
}
