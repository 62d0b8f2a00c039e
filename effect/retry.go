package effect

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy configures the exponential backoff applied to each
// capability dispatch before it is routed to the dead-letter queue.
type RetryPolicy struct {
	MaxAttempts int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	BaseDelay   time.Duration `env:"BASE_DELAY" envDefault:"100ms"`
	Multiplier  float64       `env:"MULTIPLIER" envDefault:"2.0"`
	Jitter      float64       `env:"JITTER" envDefault:"0.2"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		Multiplier:  2.0,
		Jitter:      0.2,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Millisecond
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.Jitter
	return b
}
