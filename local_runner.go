package weft

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/jtolonen/weft/internal/taskqueue"
	"github.com/jtolonen/weft/pkg/worker"
)

// LocalRunner bundles an in-memory Runtime, an in-memory task queue, and a
// Worker to provide a simple single-process runner for development and
// tests.
//
// Typical usage:
//
//	runner := weft.NewLocalRunner()
//	g := weft.NewGraph("my-graph", schema). ... .MustCompile()
//	_ = runner.Runtime.RegisterGraph(g)
//
//	// Synchronous run (no queue/worker involved):
//	info, err := weft.Run(ctx, runner.Runtime, g.Name, threadID, initial, weft.RunOptions{})
//
//	// Asynchronous run:
//	_ = runner.StartWorkers(ctx, 2)
//	_ = runner.StartRunAsync(ctx, g.Name, threadID, initial)
//	...
//	runner.Stop()
type LocalRunner struct {
	Runtime Runtime
	Queue   taskqueue.Queue
	Worker  *worker.Worker

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocalRunner constructs a LocalRunner backed by an in-memory runtime
// and queue.
func NewLocalRunner(opts ...worker.Option) *LocalRunner {
	rt := NewInMemoryRuntime()
	q := taskqueue.NewInMemoryQueue()
	return &LocalRunner{
		Runtime: rt,
		Queue:   q,
		Worker:  worker.New(rt, q, opts...),
	}
}

// StartWorkers starts concurrency worker goroutines that process tasks
// until the context is cancelled via Stop.
//
// Calling StartWorkers again without Stop returns an error.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("weft: LocalRunner already started")
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer r.wg.Done()
			for {
				processed, err := r.Worker.ProcessOne(ctx)
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}
					// A single bad task must not kill the worker loop.
					slog.Error("weft: local runner worker error", slog.String("error", err.Error()))
					continue
				}
				if !processed && ctx.Err() != nil {
					return
				}
			}
		}()
	}
	return nil
}

// Stop cancels all worker goroutines started by StartWorkers and waits for
// them to exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// StartRunAsync enqueues a task to start the named graph on a thread. The
// graph must already be registered on the runner's Runtime.
func (r *LocalRunner) StartRunAsync(ctx context.Context, graph, threadID string, initial Update) error {
	return r.Worker.EnqueueStartRun(ctx, graph, threadID, initial, RunOptions{})
}

// ReplyAsync enqueues a reviewer reply for delivery into the worker's
// review channel.
func (r *LocalRunner) ReplyAsync(ctx context.Context, threadID, author, text string) error {
	return r.Worker.EnqueueReply(ctx, threadID, author, text)
}
