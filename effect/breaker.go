package effect

import (
	"errors"
	"time"

	"github.com/on-the-ground/restor_ive_go/ports"
)

// ErrCircuitOpen is the failure handed to a capability's onError
// translation when the breaker short-circuits the call without I/O.
var ErrCircuitOpen = errors.New("capability circuit open")

// BreakerPolicy configures the per-capability circuit breaker.
// FailureThreshold <= 0 disables it.
type BreakerPolicy struct {
	FailureThreshold int           `env:"FAILURE_THRESHOLD" envDefault:"5"`
	OpenDuration     time.Duration `env:"OPEN_DURATION" envDefault:"30s"`
}

func DefaultBreakerPolicy() BreakerPolicy {
	return BreakerPolicy{FailureThreshold: 5, OpenDuration: 30 * time.Second}
}

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// breaker tracks consecutive failures for one named capability.
// Closed counts failures since the last success; Open short-circuits
// until OpenDuration has elapsed on the injected clock; Half-Open
// admits exactly one trial call.
type breaker struct {
	policy BreakerPolicy
	clock  ports.Clock

	state      breakerState
	failures   int
	openedAt   time.Time
	trialTaken bool
}

func newBreaker(policy BreakerPolicy, clock ports.Clock) *breaker {
	return &breaker{policy: policy, clock: clock}
}

// allow reports whether a call may proceed. Callers hold the owning
// interpreter's breaker lock.
func (b *breaker) allow() bool {
	if b.policy.FailureThreshold <= 0 {
		return true
	}
	switch b.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if b.clock.Now().Sub(b.openedAt) >= b.policy.OpenDuration {
			b.state = breakerHalfOpen
			b.trialTaken = true
			return true
		}
		return false
	case breakerHalfOpen:
		if b.trialTaken {
			return false
		}
		b.trialTaken = true
		return true
	}
	return false
}

func (b *breaker) success() {
	if b.policy.FailureThreshold <= 0 {
		return
	}
	b.state = breakerClosed
	b.failures = 0
	b.trialTaken = false
}

func (b *breaker) failure() {
	if b.policy.FailureThreshold <= 0 {
		return
	}
	switch b.state {
	case breakerHalfOpen:
		b.state = breakerOpen
		b.openedAt = b.clock.Now()
		b.trialTaken = false
	case breakerClosed:
		b.failures++
		if b.failures >= b.policy.FailureThreshold {
			b.state = breakerOpen
			b.openedAt = b.clock.Now()
			b.failures = 0
		}
	case breakerOpen:
		// short-circuited calls never reach here
	}
}
