// internal/ratelimit/governor.go
package ratelimit

import (
	"sync"
	"time"
)

// window is the trailing period over which the per-minute quota applies.
const window = 60 * time.Second

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed bool
	// Wait is the minimum time the caller must wait before retrying.
	// Zero when Allowed.
	Wait time.Duration
}

// Governor enforces a minimum inter-request interval and a rolling
// per-minute quota. Admission records the new timestamp atomically with
// the decision, so no request can be double counted or slip through a
// check-then-record race even under concurrent callers.
type Governor struct {
	mu          sync.Mutex
	minInterval time.Duration
	quota       int

	lastAdmitted time.Time
	admitted     []time.Time

	now func() time.Time
}

// NewGovernor builds a Governor. A zero quota disables the per-minute
// rule; a zero interval disables the spacing rule.
func NewGovernor(requestsPerMinute int, minInterval time.Duration) *Governor {
	return &Governor{
		minInterval: minInterval,
		quota:       requestsPerMinute,
		now:         time.Now,
	}
}

// Admit decides whether a request may proceed and, if so, records it.
// On rejection the returned wait is the larger of the interval remaining
// and the time until the oldest window entry expires.
func (g *Governor) Admit() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.prune(now)

	var wait time.Duration

	if g.minInterval > 0 && !g.lastAdmitted.IsZero() {
		if since := now.Sub(g.lastAdmitted); since < g.minInterval {
			wait = g.minInterval - since
		}
	}

	if g.quota > 0 && len(g.admitted) >= g.quota {
		// The slot frees up when the oldest entry leaves the window.
		expiry := g.admitted[0].Add(window).Sub(now)
		if expiry > wait {
			wait = expiry
		}
	}

	if wait > 0 {
		return Decision{Allowed: false, Wait: wait}
	}

	g.lastAdmitted = now
	if g.quota > 0 {
		g.admitted = append(g.admitted, now)
	}
	return Decision{Allowed: true}
}

// InFlight returns the number of admissions currently inside the window.
func (g *Governor) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prune(g.now())
	return len(g.admitted)
}

// prune drops timestamps that have aged out of the trailing window.
// Caller holds g.mu.
func (g *Governor) prune(now time.Time) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(g.admitted) && !g.admitted[i].After(cutoff) {
		i++
	}
	if i > 0 {
		g.admitted = append(g.admitted[:0], g.admitted[i:]...)
	}
}
