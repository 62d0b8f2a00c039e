package ports

import (
	"context"
	"fmt"
	"sync"
)

// MemoryEventStore is a mutex-guarded, in-process EventStore used by
// tests and examples. Versions are 1-based record counts per stream.
type MemoryEventStore struct {
	mu      sync.RWMutex
	streams map[string][]Record
}

var _ EventStore = (*MemoryEventStore)(nil)

func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{streams: make(map[string][]Record)}
}

func (s *MemoryEventStore) Append(ctx context.Context, streamID string, expectedVersion int64, records []Record) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	head := int64(len(s.streams[streamID]))
	if expectedVersion >= 0 && expectedVersion != head {
		return 0, fmt.Errorf("%w: stream %q at version %d, expected %d",
			ErrConcurrencyConflict, streamID, head, expectedVersion)
	}
	s.streams[streamID] = append(s.streams[streamID], records...)
	return head + int64(len(records)), nil
}

func (s *MemoryEventStore) Load(ctx context.Context, streamID string, fromVersion int64) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream := s.streams[streamID]
	if fromVersion < 0 {
		fromVersion = 0
	}
	if fromVersion >= int64(len(stream)) {
		return nil, nil
	}
	out := make([]Record, len(stream)-int(fromVersion))
	copy(out, stream[fromVersion:])
	return out, nil
}
