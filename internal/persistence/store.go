package persistence

import (
	"context"
	"errors"
	"slices"

	"github.com/jtolonen/weft/pkg/api"
)

// ErrCheckpointNotFound is returned when a thread has no checkpoint yet.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// Progress pins the execution position of a run: the nodes still to
// execute, the nodes already completed, and the barrier targets that have
// fired. An empty frontier means the run finished.
type Progress struct {
	Frontier      []api.NodeID
	Completed     []api.NodeID
	BarriersFired []api.NodeID
}

// Clone returns a deep copy so stored progress cannot alias live slices.
func (p Progress) Clone() Progress {
	return Progress{
		Frontier:      slices.Clone(p.Frontier),
		Completed:     slices.Clone(p.Completed),
		BarriersFired: slices.Clone(p.BarriersFired),
	}
}

// Checkpoint is the persisted snapshot of one thread's progress: the full
// state after the last node whose successors were resolved, the step
// counter, and the execution position. It is written after every node and
// is the sole persisted representation of progress; resuming from it
// repeats at most the node that was in flight when the process died.
type Checkpoint struct {
	ThreadID string
	State    api.State
	Step     int
	Progress Progress
}

// CheckpointStore persists one checkpoint per thread, best effort. Saves
// are not transactional across a node execution; on resume, a crash
// mid-step repeats at most the last node.
type CheckpointStore interface {
	Save(ctx context.Context, cp Checkpoint) error
	Load(ctx context.Context, threadID string) (Checkpoint, error)
	Delete(ctx context.Context, threadID string) error
}

// EventStore is an append-only history store for run events.
type EventStore interface {
	AppendEvent(ctx context.Context, ev api.RunEvent) error
	ListEvents(ctx context.Context, threadID string) ([]api.RunEvent, error)
}

// NoopEventStore discards all events.
type NoopEventStore struct{}

func (NoopEventStore) AppendEvent(ctx context.Context, ev api.RunEvent) error { return nil }
func (NoopEventStore) ListEvents(ctx context.Context, threadID string) ([]api.RunEvent, error) {
	return nil, nil
}
