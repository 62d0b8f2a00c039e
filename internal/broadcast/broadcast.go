// Package broadcast provides a bounded fan-out bus. Each subscriber
// owns a fixed-capacity drop-oldest buffer, so publishing never blocks
// on a slow subscriber; instead the subscriber observes an explicit
// Lag on its next receive and then resumes with fresh values.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by Recv once the bus has been closed and the
// subscriber's buffer is drained.
var ErrClosed = errors.New("broadcast: closed")

// Lag reports how many values a subscriber missed because its buffer
// overflowed. The subscription stays usable after a Lag.
type Lag struct {
	Count uint64
}

func (l *Lag) Error() string {
	return fmt.Sprintf("broadcast: subscriber lagged, skipped %d values", l.Count)
}

type Bus[T any] struct {
	mu       sync.Mutex
	subs     map[*Subscription[T]]struct{}
	capacity int
	closed   bool
}

func New[T any](capacity int) *Bus[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Bus[T]{
		subs:     make(map[*Subscription[T]]struct{}),
		capacity: capacity,
	}
}

func (b *Bus[T]) Subscribe() *Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &Subscription[T]{
		bus:      b,
		capacity: b.capacity,
		wake:     make(chan struct{}, 1),
		closed:   b.closed,
	}
	if !b.closed {
		b.subs[sub] = struct{}{}
	}
	return sub
}

// Publish delivers v to every live subscriber without blocking.
// Subscribers at capacity lose their oldest buffered value.
func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	subs := make([]*Subscription[T], 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.push(v)
	}
}

// Close marks the bus closed. Subscribers drain their buffers and then
// receive ErrClosed.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription[T], 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[*Subscription[T]]struct{})
	b.mu.Unlock()

	for _, sub := range subs {
		sub.markClosed()
	}
}

type Subscription[T any] struct {
	bus      *Bus[T]
	capacity int

	mu      sync.Mutex
	buf     []T
	dropped uint64
	closed  bool

	wake chan struct{}
}

func (s *Subscription[T]) push(v T) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len(s.buf) >= s.capacity {
		s.buf = s.buf[1:]
		s.dropped++
	}
	s.buf = append(s.buf, v)
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription[T]) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Recv returns the next value in delivery order. When the subscriber
// has fallen behind, Recv first returns a *Lag carrying the number of
// skipped values; the following Recv resumes with the oldest retained
// value. After Close, buffered values are still drained before
// ErrClosed is returned.
func (s *Subscription[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	for {
		s.mu.Lock()
		if s.dropped > 0 {
			n := s.dropped
			s.dropped = 0
			s.mu.Unlock()
			return zero, &Lag{Count: n}
		}
		if len(s.buf) > 0 {
			v := s.buf[0]
			s.buf = s.buf[1:]
			s.mu.Unlock()
			return v, nil
		}
		if s.closed {
			s.mu.Unlock()
			return zero, ErrClosed
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-s.wake:
		}
	}
}

// Close detaches the subscription from the bus and discards its buffer.
func (s *Subscription[T]) Close() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()

	s.mu.Lock()
	s.closed = true
	s.buf = nil
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription[T]) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
}
