package store

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"github.com/on-the-ground/restor_ive_go/effect"
)

// Config is the recognized configuration surface of a store.
type Config struct {
	// BroadcastCapacity bounds each subscriber's buffer; a subscriber
	// that falls behind it receives a lag signal.
	BroadcastCapacity int `env:"BROADCAST_CAPACITY" envDefault:"16"`
	// MaxFeedbackDepth bounds recursive effect feedback; exceeding it
	// drops the feedback Action instead of recursing unboundedly.
	MaxFeedbackDepth int `env:"MAX_FEEDBACK_DEPTH" envDefault:"32"`

	Retry   effect.RetryPolicy   `envPrefix:"RETRY_"`
	Breaker effect.BreakerPolicy `envPrefix:"BREAKER_"`
}

func DefaultConfig() Config {
	return Config{
		BroadcastCapacity: 16,
		MaxFeedbackDepth:  32,
		Retry:             effect.DefaultRetryPolicy(),
		Breaker:           effect.DefaultBreakerPolicy(),
	}
}

// ConfigFromEnv parses the configuration from RESTORIVE_-prefixed
// environment variables, e.g. RESTORIVE_BROADCAST_CAPACITY or
// RESTORIVE_RETRY_MAX_ATTEMPTS.
func ConfigFromEnv() (Config, error) {
	cfg := Config{}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "RESTORIVE_"}); err != nil {
		return cfg, fmt.Errorf("store config from env: %w", err)
	}
	return cfg.normalized(), nil
}

func (c Config) normalized() Config {
	if c.BroadcastCapacity < 1 {
		c.BroadcastCapacity = 16
	}
	if c.MaxFeedbackDepth < 1 {
		c.MaxFeedbackDepth = 32
	}
	return c
}
