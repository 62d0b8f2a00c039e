package ports

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// MemoryBus is an in-process Bus. Publishes are routed to a fixed set
// of delivery workers by topic hash, so messages on the same topic are
// always delivered in publish order while distinct topics fan out
// across workers. Subscribers that fall behind their buffer lose
// messages rather than blocking the workers.
type MemoryBus struct {
	mu        sync.RWMutex
	subs      map[string][]chan Message
	workerChs []chan Message
	cancel    context.CancelFunc
	closed    bool

	subBuffer int
}

var _ Bus = (*MemoryBus)(nil)

func NewMemoryBus(numWorkers, bufferSize int) *MemoryBus {
	if numWorkers < 1 {
		numWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &MemoryBus{
		subs:      make(map[string][]chan Message),
		workerChs: make([]chan Message, numWorkers),
		cancel:    cancel,
		subBuffer: bufferSize,
	}
	ready := sync.WaitGroup{}
	for i := 0; i < numWorkers; i++ {
		ready.Add(1)
		ch := make(chan Message, bufferSize)
		go func(ch chan Message) {
			defer close(ch)
			ready.Done()
			for {
				select {
				case msg := <-ch:
					b.deliver(msg)
				case <-ctx.Done():
					return
				}
			}
		}(ch)
		b.workerChs[i] = ch
	}
	ready.Wait()
	return b
}

func (b *MemoryBus) channelOf(topic string) chan Message {
	if len(b.workerChs) == 1 {
		return b.workerChs[0]
	}
	idx := int(xxhash.Sum64String(topic) % uint64(len(b.workerChs)))
	return b.workerChs[idx]
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, payload []byte) (err error) {
	// a worker closing its channel during shutdown races the send below
	defer func() {
		if r := recover(); r != nil {
			err = context.Canceled
		}
	}()

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return context.Canceled
	}
	b.mu.RUnlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case b.channelOf(topic) <- Message{Topic: topic, Payload: payload}:
		return nil
	}
}

func (b *MemoryBus) Subscribe(ctx context.Context, topics ...string) (<-chan Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := make(chan Message, b.subBuffer)
	b.mu.Lock()
	for _, t := range topics {
		b.subs[t] = append(b.subs[t], ch)
	}
	b.mu.Unlock()
	return ch, nil
}

func (b *MemoryBus) deliver(msg Message) {
	b.mu.RLock()
	targets := b.subs[msg.Topic]
	b.mu.RUnlock()
	for _, ch := range targets {
		select {
		case ch <- msg:
		default:
			// best-effort: a full subscriber drops the message
		}
	}
}

func (b *MemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.cancel()
}
