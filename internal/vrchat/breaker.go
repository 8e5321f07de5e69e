package vrchat

import (
	"errors"
	"sync"
	"time"

	"github.com/vrceventbot/vrceventbot/internal/provider"
)

// ErrCircuitOpen is wrapped in the provider error returned while the breaker
// refuses calls.
var ErrCircuitOpen = errors.New("vrchat circuit breaker is open")

// BreakerState is the state of the outage breaker.
type BreakerState int32

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// breaker stops hammering VRChat while it is down. Only outage signals count
// as failures: transport errors, 5xx and 429. A wrong password or MFA code
// is a normal answer and never trips it.
type breaker struct {
	mu          sync.Mutex
	state       BreakerState
	failures    int
	trials      int
	changedAt   time.Time
	threshold   int
	cooldown    time.Duration
	trialLimit  int
	rejected    int
	transitions int
	now         func() time.Time
}

func newBreaker(threshold int, cooldown time.Duration) *breaker {
	return &breaker{
		threshold:  threshold,
		cooldown:   cooldown,
		trialLimit: 1,
		now:        time.Now,
		changedAt:  time.Now(),
	}
}

// allow reports whether a call may go out. After the cooldown one trial call is
// let through in half-open state.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen && b.now().Sub(b.changedAt) >= b.cooldown {
		b.setState(BreakerHalfOpen)
		b.trials = 0
	}
	switch b.state {
	case BreakerOpen:
		b.rejected++
		return false
	case BreakerHalfOpen:
		if b.trials >= b.trialLimit {
			b.rejected++
			return false
		}
		b.trials++
	}
	return true
}

// record feeds the outcome of an allowed call back into the breaker.
func (b *breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !provider.IsOutage(err) {
		if b.state == BreakerHalfOpen {
			b.setState(BreakerClosed)
		}
		b.failures = 0
		return
	}

	b.failures++
	switch b.state {
	case BreakerHalfOpen:
		b.setState(BreakerOpen)
	case BreakerClosed:
		if b.failures >= b.threshold {
			b.setState(BreakerOpen)
		}
	}
}

// release returns a half-open trial slot whose call was abandoned by its caller.
func (b *breaker) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerHalfOpen && b.trials > 0 {
		b.trials--
	}
}

func (b *breaker) setState(s BreakerState) {
	if b.state == s {
		return
	}
	b.state = s
	b.changedAt = b.now()
	b.transitions++
	if s == BreakerClosed {
		b.failures = 0
	}
}

func (b *breaker) current() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// BreakerStats is a snapshot of the breaker counters.
type BreakerStats struct {
	State       string `json:"state"`
	Failures    int    `json:"failures"`
	Rejected    int    `json:"rejected"`
	Transitions int    `json:"transitions"`
}

func (b *breaker) stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{
		State:       b.state.String(),
		Failures:    b.failures,
		Rejected:    b.rejected,
		Transitions: b.transitions,
	}
}
