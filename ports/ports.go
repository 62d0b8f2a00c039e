// Package ports declares the capability interfaces injected into an
// Environment: a clock, a durable event journal, and a message bus.
// Production adapters live outside this module; the in-memory
// implementations here back tests and examples.
package ports

import (
	"context"
	"errors"
	"time"
)

// Clock abstracts wall-clock access so that time-dependent runtime
// pieces (delayed effects, circuit-breaker cooldowns, saga guards)
// stay testable.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err()
	// in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// ErrConcurrencyConflict is returned by EventStore.Append when the
// expected version does not match the stream head.
var ErrConcurrencyConflict = errors.New("event store: concurrency conflict")

// Record is a single journal entry. The runtime never inspects Data.
type Record struct {
	Type string
	Data []byte
}

// EventStore is the durable-storage port: an append-only, optimistically
// versioned stream journal.
type EventStore interface {
	// Append writes records after the given expected version and returns
	// the new head version. expectedVersion < 0 skips the version check.
	Append(ctx context.Context, streamID string, expectedVersion int64, records []Record) (int64, error)
	// Load returns the records of a stream starting at fromVersion,
	// in append order.
	Load(ctx context.Context, streamID string, fromVersion int64) ([]Record, error)
}

// Message is a payload delivered on a bus topic.
type Message struct {
	Topic   string
	Payload []byte
}

// Bus is the message-bus port. Delivery is at-least-once and
// best-effort towards slow subscribers; per-topic ordering is
// preserved by conforming implementations.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topics ...string) (<-chan Message, error)
}
