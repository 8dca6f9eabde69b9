package worker

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jtolonen/weft/internal/taskqueue"
	"github.com/jtolonen/weft/pkg/api"
	"github.com/jtolonen/weft/pkg/review"
)

func init() {
	gob.Register(StartRunPayload{})
	gob.Register(ReplyPayload{})
	gob.Register(api.Update{})
}

// StartRunPayload is the payload for a start-run task.
type StartRunPayload struct {
	Initial api.Update
	Options api.RunOptions
}

// ReplyPayload is the payload for a deliver-reply task: a reviewer message
// to post into the review channel, where a waiting gateway will pick it up
// on its next poll.
type ReplyPayload struct {
	Author string
	Text   string
}

// DefaultLease is how long a dequeued task stays invisible to other workers
// before it is considered abandoned.
const DefaultLease = 2 * time.Minute

// dequeueErrBackoff is the pause before retrying after a failed dequeue, so
// a broken queue does not spin the run loop.
const dequeueErrBackoff = time.Second

// Worker pulls tasks from a Queue and executes them against a Runtime.
type Worker struct {
	id      string
	runtime api.Runtime
	queue   taskqueue.Queue
	replies review.Channel
	lease   time.Duration
	logger  *slog.Logger
}

// Option configures a Worker.
type Option func(*Worker)

// WithReplyChannel sets the channel deliver-reply tasks post into. Without
// it, deliver-reply tasks fail.
func WithReplyChannel(ch review.Channel) Option {
	return func(w *Worker) { w.replies = ch }
}

// WithLease overrides the task visibility lease.
func WithLease(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.lease = d
		}
	}
}

// WithID sets the worker id used to claim leases.
func WithID(id string) Option {
	return func(w *Worker) {
		if id != "" {
			w.id = id
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a Worker over the given runtime and queue.
func New(runtime api.Runtime, queue taskqueue.Queue, opts ...Option) *Worker {
	w := &Worker{
		id:      "worker-" + uuid.NewString(),
		runtime: runtime,
		queue:   queue,
		lease:   DefaultLease,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// EnqueueStartRun enqueues a task to start the named graph on a thread. It
// does not run the graph itself; that is done by ProcessOne.
func (w *Worker) EnqueueStartRun(ctx context.Context, graph, threadID string, initial api.Update, opts api.RunOptions) error {
	return w.queue.Enqueue(ctx, taskqueue.Task{
		Type:       taskqueue.TaskTypeStartRun,
		GraphName:  graph,
		ThreadID:   threadID,
		Payload:    StartRunPayload{Initial: initial, Options: opts},
		EnqueuedAt: time.Now(),
	})
}

// EnqueueStartRunAt enqueues a start-run task that becomes visible no
// earlier than at.
func (w *Worker) EnqueueStartRunAt(ctx context.Context, graph, threadID string, initial api.Update, opts api.RunOptions, at time.Time) error {
	return w.queue.Enqueue(ctx, taskqueue.Task{
		Type:       taskqueue.TaskTypeStartRun,
		GraphName:  graph,
		ThreadID:   threadID,
		Payload:    StartRunPayload{Initial: initial, Options: opts},
		EnqueuedAt: time.Now(),
		NotBefore:  at,
	})
}

// EnqueueReply enqueues a reviewer reply for asynchronous delivery into the
// review channel.
func (w *Worker) EnqueueReply(ctx context.Context, threadID, author, text string) error {
	return w.queue.Enqueue(ctx, taskqueue.Task{
		Type:       taskqueue.TaskTypeDeliverReply,
		ThreadID:   threadID,
		Payload:    ReplyPayload{Author: author, Text: text},
		EnqueuedAt: time.Now(),
	})
}

// ProcessOne claims a single task and processes it. It returns
// (processed, error):
//   - processed == false: no task was obtained (ctx cancelled or dequeue
//     failed).
//   - processed == true: a task was handled and acknowledged; err reports
//     whether the handler succeeded.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx, w.id, w.lease)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	handleErr := w.handle(ctx, task)

	// Acknowledge regardless of the handler outcome: handler errors are
	// reported to the caller, not retried by redelivery. Redelivery is for
	// workers that died mid-task.
	if ackErr := w.queue.Ack(ctx, task.ID, w.id); ackErr != nil {
		w.logger.WarnContext(ctx, "task_ack_failed",
			slog.String("task", task.ID),
			slog.String("error", ackErr.Error()))
	}
	return true, handleErr
}

func (w *Worker) handle(ctx context.Context, task *taskqueue.Task) error {
	switch task.Type {
	case taskqueue.TaskTypeStartRun:
		payload, ok := task.Payload.(StartRunPayload)
		if !ok {
			return fmt.Errorf("start-run task %s: invalid payload type %T", task.ID, task.Payload)
		}
		run, err := w.runtime.Run(ctx, task.GraphName, task.ThreadID, payload.Initial, payload.Options)
		if err != nil {
			return err
		}
		w.logger.InfoContext(ctx, "task_run_finished",
			slog.String("graph", task.GraphName),
			slog.String("thread", task.ThreadID),
			slog.String("status", string(run.Status)))
		return nil

	case taskqueue.TaskTypeDeliverReply:
		payload, ok := task.Payload.(ReplyPayload)
		if !ok {
			return fmt.Errorf("deliver-reply task %s: invalid payload type %T", task.ID, task.Payload)
		}
		if w.replies == nil {
			return fmt.Errorf("deliver-reply task %s: no reply channel configured", task.ID)
		}
		_, err := w.replies.Post(ctx, payload.Author, payload.Text)
		return err

	default:
		return fmt.Errorf("unknown task type %q", task.Type)
	}
}

// Run processes tasks until ctx is cancelled. Handler errors are logged and
// do not stop the loop; a failing dequeue is retried after a pause.
func (w *Worker) Run(ctx context.Context) error {
	for {
		processed, err := w.ProcessOne(ctx)
		if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			return err
		}
		if err != nil {
			w.logger.ErrorContext(ctx, "task_failed", slog.String("error", err.Error()))
		}
		if !processed {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(dequeueErrBackoff):
				}
			}
		}
	}
}
