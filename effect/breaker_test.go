package effect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/on-the-ground/restor_ive_go/ports"
)

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	clock := ports.NewFakeClock(time.Unix(0, 0))
	br := newBreaker(BreakerPolicy{FailureThreshold: 3, OpenDuration: time.Minute}, clock)

	for i := 0; i < 2; i++ {
		assert.True(t, br.allow())
		br.failure()
	}
	// a success resets the consecutive count
	assert.True(t, br.allow())
	br.success()

	for i := 0; i < 3; i++ {
		assert.True(t, br.allow())
		br.failure()
	}
	assert.False(t, br.allow(), "breaker must be open after threshold consecutive failures")
}

func TestBreaker_HalfOpenAdmitsExactlyOneTrial(t *testing.T) {
	clock := ports.NewFakeClock(time.Unix(0, 0))
	br := newBreaker(BreakerPolicy{FailureThreshold: 1, OpenDuration: time.Minute}, clock)

	assert.True(t, br.allow())
	br.failure()
	assert.False(t, br.allow())

	clock.Advance(time.Minute)
	assert.True(t, br.allow(), "cooldown elapsed, one trial admitted")
	assert.False(t, br.allow(), "only one trial while half-open")

	br.success()
	assert.True(t, br.allow(), "trial success closes the breaker")
}

func TestBreaker_TrialFailureReopens(t *testing.T) {
	clock := ports.NewFakeClock(time.Unix(0, 0))
	br := newBreaker(BreakerPolicy{FailureThreshold: 1, OpenDuration: time.Minute}, clock)

	br.allow()
	br.failure()
	clock.Advance(time.Minute)
	assert.True(t, br.allow())
	br.failure()

	assert.False(t, br.allow(), "trial failure reopens the breaker")
	clock.Advance(time.Minute)
	assert.True(t, br.allow(), "a fresh cooldown admits another trial")
}

func TestBreaker_DisabledWhenThresholdZero(t *testing.T) {
	clock := ports.NewFakeClock(time.Unix(0, 0))
	br := newBreaker(BreakerPolicy{}, clock)
	for i := 0; i < 100; i++ {
		assert.True(t, br.allow())
		br.failure()
	}
}
