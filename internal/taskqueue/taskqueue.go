// Package taskqueue delivers background work to workflow workers. Tasks are
// leased rather than removed on dequeue: a claimed task becomes invisible for
// the lease duration and is redelivered if the worker never acknowledges it,
// so a crashed worker cannot strand a run.
package taskqueue

import (
	"context"
	"time"
)

// TaskType identifies what the worker should do with a task.
type TaskType string

const (
	// TaskTypeStartRun starts a graph run on a thread.
	TaskTypeStartRun TaskType = "start-run"

	// TaskTypeDeliverReply posts a reviewer reply into a review channel.
	TaskTypeDeliverReply TaskType = "deliver-reply"
)

// Task is one unit of background work.
type Task struct {
	ID   string
	Type TaskType

	// GraphName names the registered graph for start-run tasks.
	GraphName string

	// ThreadID is the workflow thread the task operates on.
	ThreadID string

	// Payload is task-type specific. Concrete types must be registered
	// with encoding/gob by the enqueuing side.
	Payload any

	EnqueuedAt time.Time

	// NotBefore is the earliest time the task becomes visible to workers.
	// The zero value means "immediately".
	NotBefore time.Time

	// Attempts counts deliveries, including the current one.
	Attempts int
}

// Queue hands tasks to workers under a visibility lease.
type Queue interface {
	// Enqueue adds a task. An empty Task.ID is assigned by the queue.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue claims the next visible task for workerID, blocking until one
	// is available or ctx is cancelled. The task stays invisible to other
	// workers for the lease duration; if it is not acknowledged before the
	// lease expires it becomes visible again.
	Dequeue(ctx context.Context, workerID string, lease time.Duration) (*Task, error)

	// Ack removes a task the worker finished processing. Acknowledging a
	// task whose lease already moved to another worker is a no-op.
	Ack(ctx context.Context, taskID, workerID string) error

	// Len returns the number of tasks not yet acknowledged.
	Len() int
}
