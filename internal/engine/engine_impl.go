package engine

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/jtolonen/weft/internal/persistence"
	"github.com/jtolonen/weft/pkg/api"
)

// runtimeImpl is a single-process, synchronous graph runtime. One control
// loop drives each run; only the fan-out coordinator executes sub-graphs
// concurrently, and it is the sole writer of the parent state at the join.
type runtimeImpl struct {
	graphs      *graphRegistry
	threads     *threadRegistry
	checkpoints persistence.CheckpointStore
	events      persistence.EventStore
	observer    api.Observer
}

// Config describes how to construct a runtime.
// Only used inside this package; external callers use the helper functions.
type Config struct {
	Checkpoints persistence.CheckpointStore
	Events      persistence.EventStore
	Observer    api.Observer
}

// NewInMemoryRuntime returns a Runtime backed entirely by in-memory stores.
func NewInMemoryRuntime() api.Runtime {
	mem := persistence.NewInMemoryStore()
	return NewRuntimeWithConfig(Config{
		Checkpoints: mem,
		Events:      mem,
	})
}

// NewInMemoryRuntimeWithObserver returns an in-memory Runtime with the
// given Observer.
func NewInMemoryRuntimeWithObserver(obs api.Observer) api.Runtime {
	mem := persistence.NewInMemoryStore()
	return NewRuntimeWithConfig(Config{
		Checkpoints: mem,
		Events:      mem,
		Observer:    obs,
	})
}

// NewSQLiteRuntime returns a Runtime that persists checkpoints and run
// events in a SQLite database.
func NewSQLiteRuntime(db *sql.DB) (api.Runtime, error) {
	return NewSQLiteRuntimeWithObserver(db, nil)
}

// NewSQLiteRuntimeWithObserver returns a SQLite-backed Runtime with the
// given Observer.
func NewSQLiteRuntimeWithObserver(db *sql.DB, obs api.Observer) (api.Runtime, error) {
	cps, err := persistence.NewSQLiteCheckpointStore(db)
	if err != nil {
		return nil, err
	}
	evs, err := persistence.NewSQLiteEventStore(db)
	if err != nil {
		return nil, err
	}
	return NewRuntimeWithConfig(Config{
		Checkpoints: cps,
		Events:      evs,
		Observer:    obs,
	}), nil
}

// NewRuntimeWithConfig creates a new Runtime using the given configuration.
func NewRuntimeWithConfig(cfg Config) api.Runtime {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	evs := cfg.Events
	if evs == nil {
		evs = persistence.NoopEventStore{}
	}
	return &runtimeImpl{
		graphs:      newGraphRegistry(),
		threads:     newThreadRegistry(),
		checkpoints: cfg.Checkpoints,
		events:      evs,
		observer:    obs,
	}
}

func (e *runtimeImpl) RegisterGraph(g *api.Graph) error {
	return e.graphs.Register(g)
}

func (e *runtimeImpl) Run(ctx context.Context, graph string, threadID string, initial api.Update, opts api.RunOptions) (*api.RunInfo, error) {
	g, err := e.graphs.Get(graph)
	if err != nil {
		return nil, err
	}

	st, err := g.Schema.Apply(api.State{}, initial)
	if err != nil {
		return nil, err
	}

	return e.drive(ctx, g, threadID, st, 0, opts, api.EventRunStarted, nil)
}

func (e *runtimeImpl) Resume(ctx context.Context, graph string, threadID string, opts api.RunOptions) (*api.RunInfo, error) {
	g, err := e.graphs.Get(graph)
	if err != nil {
		return nil, err
	}

	cp, err := e.checkpoints.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}

	// The checkpoint carries both the state and the execution position, so
	// a resume continues at the recorded frontier. Only a node that was in
	// flight when the process died runs again; a finished run resumes as a
	// no-op.
	return e.drive(ctx, g, threadID, cp.State, cp.Step, opts, api.EventRunResumed, &cp.Progress)
}

func (e *runtimeImpl) drive(ctx context.Context, g *api.Graph, threadID string, st api.State, startStep int, opts api.RunOptions, kickoff api.EventType, resume *persistence.Progress) (*api.RunInfo, error) {
	if err := e.threads.Enter(threadID); err != nil {
		return nil, err
	}
	defer e.threads.Exit(threadID)

	limit := opts.RecursionLimit
	if limit <= 0 {
		limit = api.DefaultRecursionLimit
	}

	run := &api.RunInfo{
		ID:     uuid.NewString(),
		Graph:  g.Name,
		Thread: threadID,
		Status: api.StatusRunning,
		Steps:  startStep,
	}

	e.observer.OnRunStart(ctx, run)
	e.appendEvent(ctx, run, kickoff, "", startStep, "")

	save := func(ctx context.Context, st api.State, step int, prog persistence.Progress) error {
		return e.checkpoints.Save(ctx, persistence.Checkpoint{
			ThreadID: threadID,
			State:    st,
			Step:     step,
			Progress: prog,
		})
	}

	_, steps, err := e.execute(ctx, g, run, st, startStep, limit, save, true, resume)
	run.Steps = steps
	if err != nil {
		run.Status = api.StatusFailed
		run.Err = err
		e.observer.OnRunFailed(ctx, run, err)
		e.appendEvent(ctx, run, api.EventRunFailed, "", steps, err.Error())
		return run, err
	}

	run.Status = api.StatusCompleted
	e.observer.OnRunCompleted(ctx, run)
	e.appendEvent(ctx, run, api.EventRunCompleted, "", steps, "")
	return run, nil
}

func (e *runtimeImpl) StateOf(ctx context.Context, threadID string) (api.State, int, error) {
	cp, err := e.checkpoints.Load(ctx, threadID)
	if err != nil {
		return nil, 0, err
	}
	return cp.State, cp.Step, nil
}

func (e *runtimeImpl) History(ctx context.Context, threadID string) ([]api.RunEvent, error) {
	return e.events.ListEvents(ctx, threadID)
}

func (e *runtimeImpl) Active(threadID string) bool {
	return e.threads.Active(threadID)
}

type saveFunc func(ctx context.Context, st api.State, step int, prog persistence.Progress) error

// execute drives one graph (or one fan-out branch, when save is nil and
// record is false) to its terminal state. Nodes run one pass at a time:
// every node in the current frontier executes in order, its update is
// merged through the reducers, its outgoing edges are resolved, and a
// checkpoint is written that records both the state and the nodes still
// pending. Because the checkpoint is written after successor resolution,
// a resume re-executes at most the node that was in flight when the
// process died. Barrier targets join the frontier only once every listed
// predecessor has completed.
func (e *runtimeImpl) execute(ctx context.Context, g *api.Graph, run *api.RunInfo, st api.State, startStep, limit int, save saveFunc, record bool, resume *persistence.Progress) (api.State, int, error) {
	steps := startStep
	completed := make(map[api.NodeID]bool)
	barrierFired := make(map[api.NodeID]bool)

	frontier := []api.NodeID{g.Entry}
	if resume != nil {
		frontier = append([]api.NodeID(nil), resume.Frontier...)
		for _, id := range resume.Completed {
			completed[id] = true
		}
		for _, id := range resume.BarriersFired {
			barrierFired[id] = true
		}
	}

	for {
		// Barrier targets whose predecessors have all completed join the
		// frontier exactly once. Completion is tracked per predecessor, not
		// first-arrival; checking before each pass also lets a resumed run
		// reach a barrier that was ready when the checkpoint was written.
		inFrontier := make(map[api.NodeID]bool, len(frontier))
		for _, id := range frontier {
			inFrontier[id] = true
		}
		for _, b := range g.Barriers {
			if barrierFired[b.To] || inFrontier[b.To] {
				continue
			}
			ready := true
			for _, from := range b.From {
				if !completed[from] {
					ready = false
					break
				}
			}
			if ready {
				barrierFired[b.To] = true
				frontier = append(frontier, b.To)
			}
		}
		if len(frontier) == 0 {
			return st, steps, nil
		}

		var next []api.NodeID
		queued := make(map[api.NodeID]bool)
		enqueue := func(id api.NodeID) {
			if id == api.End || id == "" || queued[id] {
				return
			}
			queued[id] = true
			next = append(next, id)
		}

		for i, id := range frontier {
			select {
			case <-ctx.Done():
				return st, steps, ctx.Err()
			default:
			}

			def, ok := g.Nodes[id]
			if !ok {
				return st, steps, fmt.Errorf("graph %q: dispatch to unknown node %q", g.Name, id)
			}

			steps++
			if steps > limit {
				return st, steps, fmt.Errorf("graph %q: %w (limit %d)", g.Name, api.ErrRecursionLimit, limit)
			}

			upd, err := e.runNode(ctx, run, def, st, steps, record)
			if err != nil {
				return st, steps, &api.NodeError{Node: id, Err: err}
			}

			st, err = g.Schema.Apply(st, upd)
			if err != nil {
				return st, steps, &api.NodeError{Node: id, Err: err}
			}
			completed[id] = true

			// Resolve successors before checkpointing so the saved
			// frontier no longer lists this node.
			if tos, ok := g.Static[id]; ok {
				// Static successors all run in the next pass.
				for _, to := range tos {
					enqueue(to)
				}
			} else if dispatch, ok := g.Conditionals[id]; ok {
				// The abort flag is consulted at every conditional-edge
				// resolution; once set, every dispatch routes to End.
				if !g.Aborted(st) {
					route := dispatch(ctx, st)
					switch route.Kind {
					case api.RouteStop:
					case api.RouteGoto:
						enqueue(route.To)
					case api.RouteFanOut:
						merged, dropped, err := e.runBranches(ctx, g, run, id, st, route.Branches, limit, steps, record)
						if err != nil {
							return st, steps, err
						}
						st = merged
						if !dropped {
							enqueue(route.To)
						}
					default:
						return st, steps, fmt.Errorf("graph %q: node %q returned an invalid route", g.Name, id)
					}
				}
			}

			if save != nil {
				prog := pendingProgress(frontier[i+1:], next, completed, barrierFired)
				if err := save(ctx, st, steps, prog); err != nil {
					return st, steps, fmt.Errorf("checkpoint after node %q: %w", id, err)
				}
			}
		}

		frontier = next
	}
}

// pendingProgress snapshots the execution position after one node: the rest
// of the current pass followed by everything enqueued for the next one,
// deduplicated in order, plus the bookkeeping the barrier check needs.
func pendingProgress(rest, next []api.NodeID, completed, barriersFired map[api.NodeID]bool) persistence.Progress {
	frontier := make([]api.NodeID, 0, len(rest)+len(next))
	seen := make(map[api.NodeID]bool, len(rest)+len(next))
	for _, group := range [][]api.NodeID{rest, next} {
		for _, id := range group {
			if !seen[id] {
				seen[id] = true
				frontier = append(frontier, id)
			}
		}
	}
	return persistence.Progress{
		Frontier:      frontier,
		Completed:     sortedNodeSet(completed),
		BarriersFired: sortedNodeSet(barriersFired),
	}
}

func sortedNodeSet(m map[api.NodeID]bool) []api.NodeID {
	if len(m) == 0 {
		return nil
	}
	out := make([]api.NodeID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// runNode executes one node, applying its retry policy if it has one.
// Retries stay local to the node and never alter graph topology.
func (e *runtimeImpl) runNode(ctx context.Context, run *api.RunInfo, def api.NodeDefinition, st api.State, step int, record bool) (api.Update, error) {
	maxAttempts := 1
	var (
		backoff    time.Duration
		maxBackoff time.Duration
		multiplier float64
	)
	if def.Retry != nil {
		if def.Retry.MaxAttempts > 0 {
			maxAttempts = def.Retry.MaxAttempts
		}
		backoff = def.Retry.InitialBackoff
		maxBackoff = def.Retry.MaxBackoff
		multiplier = def.Retry.Multiplier
		if multiplier <= 0 {
			multiplier = 2.0
		}
	}

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		start := time.Now()
		e.observer.OnNodeStart(ctx, run, def.ID, step)
		if record {
			e.appendEvent(ctx, run, api.EventNodeStarted, def.ID, step, "")
		}

		upd, err := def.Fn(ctx, st)

		duration := time.Since(start)
		e.observer.OnNodeCompleted(ctx, run, def.ID, step, err, duration)

		if err == nil {
			if record {
				e.appendEvent(ctx, run, api.EventNodeCompleted, def.ID, step, "")
			}
			return upd, nil
		}

		lastErr = err
		if record {
			e.appendEvent(ctx, run, api.EventNodeFailed, def.ID, step, err.Error())
		}

		if attempt == maxAttempts {
			break
		}

		if backoff > 0 {
			delay := backoff
			if maxBackoff > 0 && delay > maxBackoff {
				delay = maxBackoff
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			backoff = time.Duration(float64(backoff) * multiplier)
			if maxBackoff > 0 && backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}

	return nil, lastErr
}

func (e *runtimeImpl) appendEvent(ctx context.Context, run *api.RunInfo, typ api.EventType, node api.NodeID, step int, detail string) {
	// History is best effort; a failed append never fails the run.
	_ = e.events.AppendEvent(ctx, api.RunEvent{
		ThreadID: run.Thread,
		RunID:    run.ID,
		At:       time.Now(),
		Type:     typ,
		Graph:    run.Graph,
		Node:     node,
		Step:     step,
		Detail:   detail,
	})
}
