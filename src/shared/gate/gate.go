package gate

import (
	"sync"
	"time"
)

// Kind classifies an outbound ledger request. Poll probes are the frequent,
// single-proposal status reads issued while a reveal is pending; they run on
// half the cooldown and half the error backoff of normal requests.
type Kind int

const (
	Normal Kind = iota
	PollProbe
)

// Denial reasons reported to callers. None of them are user-visible errors:
// the expected reaction is an empty result and a later retry.
const (
	ReasonThrottled = "throttled"
	ReasonCooldown  = "cooldown"
	ReasonBackoff   = "backoff"
)

const (
	MaxRequestsPerMinute = 30
	MinRequestInterval   = 2 * time.Second
	MaxConsecutiveErrors = 3
	ErrorBackoff         = 30 * time.Second

	window = time.Minute
)

// Decision is the outcome of TryAcquire. RetryAfter is advisory.
type Decision struct {
	Allowed    bool
	Reason     string
	RetryAfter time.Duration
}

// Gate throttles and circuit-breaks outbound calls to the ledger RPC
// endpoint. Remote providers run their own opaque breakers; the gate exists
// to stop us tripping those and to degrade to "no data" instead of hammering
// a failing endpoint. It performs no I/O itself: callers acquire, do the
// call, then report RecordSuccess or RecordFailure.
type Gate struct {
	mu sync.Mutex

	now func() time.Time

	lastRequestAt     time.Time
	requests          []time.Time
	consecutiveErrors int
}

func New() *Gate {
	return &Gate{now: time.Now}
}

// NewWithClock is for tests.
func NewWithClock(now func() time.Time) *Gate {
	return &Gate{now: now}
}

// TryAcquire decides whether one request of the given kind may go out now.
// It never blocks.
func (g *Gate) TryAcquire(kind Kind) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.prune(now)

	if g.consecutiveErrors >= MaxConsecutiveErrors {
		backoff := ErrorBackoff
		if kind == PollProbe {
			backoff = ErrorBackoff / 2
		}
		since := now.Sub(g.lastRequestAt)
		if since < backoff {
			return Decision{Reason: ReasonBackoff, RetryAfter: backoff - since}
		}
		g.consecutiveErrors = 0
	}

	if len(g.requests) >= MaxRequestsPerMinute {
		return Decision{Reason: ReasonThrottled, RetryAfter: g.requests[0].Add(window).Sub(now)}
	}

	interval := MinRequestInterval
	if kind == PollProbe {
		interval = MinRequestInterval / 2
	}
	if !g.lastRequestAt.IsZero() {
		if since := now.Sub(g.lastRequestAt); since < interval {
			return Decision{Reason: ReasonCooldown, RetryAfter: interval - since}
		}
	}

	g.lastRequestAt = now
	g.requests = append(g.requests, now)
	return Decision{Allowed: true}
}

// RecordSuccess resets the consecutive error counter.
func (g *Gate) RecordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.consecutiveErrors = 0
}

// RecordFailure counts one failed call toward the backoff threshold.
func (g *Gate) RecordFailure() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.consecutiveErrors++
}

// prune drops request timestamps that fell out of the sliding window.
// Caller holds the lock.
func (g *Gate) prune(now time.Time) {
	valid := g.requests[:0]
	for _, t := range g.requests {
		if now.Sub(t) < window {
			valid = append(valid, t)
		}
	}
	g.requests = valid
}
