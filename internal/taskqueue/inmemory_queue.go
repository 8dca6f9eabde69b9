package taskqueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryQueue is a Queue held entirely in memory. It is safe for
// concurrent use and implements the same lease semantics as the durable
// backends, so worker code behaves identically in tests and demos.
type InMemoryQueue struct {
	mu           sync.Mutex
	entries      []*memEntry
	pollInterval time.Duration
}

type memEntry struct {
	task       Task
	leasedBy   string
	leaseUntil time.Time
}

var _ Queue = (*InMemoryQueue)(nil)

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{pollInterval: 10 * time.Millisecond}
}

func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}
	if t.NotBefore.IsZero() {
		t.NotBefore = t.EnqueuedAt
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, &memEntry{task: t})
	return nil
}

func (q *InMemoryQueue) Dequeue(ctx context.Context, workerID string, lease time.Duration) (*Task, error) {
	for {
		if t := q.claim(workerID, lease); t != nil {
			return t, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

// claim picks the oldest visible entry, marks its lease and returns a copy.
func (q *InMemoryQueue) claim(workerID string, lease time.Duration) *Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	var best *memEntry
	for _, e := range q.entries {
		if e.task.NotBefore.After(now) {
			continue
		}
		if e.leasedBy != "" && e.leaseUntil.After(now) {
			continue
		}
		if best == nil || e.task.NotBefore.Before(best.task.NotBefore) {
			best = e
		}
	}
	if best == nil {
		return nil
	}

	best.leasedBy = workerID
	best.leaseUntil = now.Add(lease)
	best.task.Attempts++
	t := best.task
	return &t
}

func (q *InMemoryQueue) Ack(ctx context.Context, taskID, workerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.entries {
		if e.task.ID == taskID && e.leasedBy == workerID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (q *InMemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
