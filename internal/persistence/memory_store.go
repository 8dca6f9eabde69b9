package persistence

import (
	"context"
	"sync"

	"github.com/jtolonen/weft/pkg/api"
)

// InMemoryStore is a simple, goroutine-safe implementation of
// CheckpointStore and EventStore backed by maps. It is non-durable and
// intended for tests and local development.
type InMemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[string]Checkpoint
	events      map[string][]api.RunEvent
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		checkpoints: make(map[string]Checkpoint),
		events:      make(map[string][]api.RunEvent),
	}
}

// Ensure InMemoryStore implements the interfaces.
var _ CheckpointStore = (*InMemoryStore)(nil)

var _ EventStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) Save(ctx context.Context, cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Copy the state map so later mutations by the runtime cannot reach
	// into the stored snapshot.
	cp.State = cp.State.Clone()
	cp.Progress = cp.Progress.Clone()
	s.checkpoints[cp.ThreadID] = cp
	return nil
}

func (s *InMemoryStore) Load(ctx context.Context, threadID string) (Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[threadID]
	if !ok {
		return Checkpoint{}, ErrCheckpointNotFound
	}
	cp.State = cp.State.Clone()
	cp.Progress = cp.Progress.Clone()
	return cp, nil
}

func (s *InMemoryStore) Delete(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.checkpoints, threadID)
	return nil
}

func (s *InMemoryStore) AppendEvent(ctx context.Context, ev api.RunEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[ev.ThreadID] = append(s.events[ev.ThreadID], ev)
	return nil
}

func (s *InMemoryStore) ListEvents(ctx context.Context, threadID string) ([]api.RunEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evs := s.events[threadID]
	out := make([]api.RunEvent, len(evs))
	copy(out, evs)
	return out, nil
}
