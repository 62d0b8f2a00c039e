package effect

import "sync"

// DeadLetterEntry records one capability dispatch whose retries were
// exhausted. The original Effect value is retained so the entry can be
// replayed through an Interpreter.
type DeadLetterEntry struct {
	Description string
	Capability  string
	Err         error
	Attempts    int
	Recorded    TimeSpan
	Effect      Effect
}

// DeadLetterQueue is a concurrent-producer-safe, append-only record of
// failed effects. Appending never blocks the dispatch loop.
type DeadLetterQueue struct {
	mu      sync.Mutex
	entries []DeadLetterEntry
}

func NewDeadLetterQueue() *DeadLetterQueue {
	return &DeadLetterQueue{}
}

func (q *DeadLetterQueue) Append(e DeadLetterEntry) {
	q.mu.Lock()
	q.entries = append(q.entries, e)
	q.mu.Unlock()
}

// Entries returns a snapshot for inspection.
func (q *DeadLetterQueue) Entries() []DeadLetterEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeadLetterEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Drain removes and returns all entries, typically ahead of a replay.
func (q *DeadLetterQueue) Drain() []DeadLetterEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.entries
	q.entries = nil
	return out
}

func (q *DeadLetterQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
