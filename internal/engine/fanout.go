package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jtolonen/weft/pkg/api"
)

// runBranches executes a fan-out: one isolated sub-graph run per BranchSpec,
// concurrently. Each branch owns a private state seeded from its Init update
// and a fresh recursion limit; branches never see the parent state or each
// other. Results are written into an index-addressed arena, and after every
// branch has finished the coordinator folds them into the parent state
// strictly in branch-index order. This goroutine is the only writer of the
// parent state, so the merged result is identical no matter in which order
// the branches complete.
//
// The boolean result reports whether the results were dropped: when the
// parent's abort flag was raised before the fan-out resolved, or the context
// was cancelled, branch results are discarded wholesale and the caller routes
// to End instead of the continuation node.
func (e *runtimeImpl) runBranches(ctx context.Context, g *api.Graph, run *api.RunInfo, source api.NodeID, st api.State, specs []api.BranchSpec, limit, step int, record bool) (api.State, bool, error) {
	n := len(specs)
	if n == 0 {
		return st, false, fmt.Errorf("graph %q: node %q fanned out to zero branches", g.Name, source)
	}

	e.observer.OnBranchesStart(ctx, run, source, n)
	if record {
		e.appendEvent(ctx, run, api.EventBranchesStarted, source, step, fmt.Sprintf("branches=%d", n))
	}
	start := time.Now()

	results := make([]api.State, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i, spec := range specs {
		wg.Add(1)
		go func(i int, spec api.BranchSpec) {
			defer wg.Done()

			seed, err := spec.Graph.Schema.Apply(api.State{}, spec.Init)
			if err != nil {
				errs[i] = err
				return
			}

			// Branch runs are ephemeral: no checkpointing, no history
			// records. Only the joined parent state is durable.
			final, _, err := e.execute(ctx, spec.Graph, run, seed, 0, limit, nil, false, nil)
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = final
		}(i, spec)
	}
	wg.Wait()

	elapsed := time.Since(start)

	if g.Aborted(st) || ctx.Err() != nil {
		e.observer.OnBranchesJoined(ctx, run, source, n, true, elapsed)
		if record {
			e.appendEvent(ctx, run, api.EventBranchesDropped, source, step, fmt.Sprintf("branches=%d", n))
		}
		return st, true, ctx.Err()
	}

	for i := range specs {
		if errs[i] != nil {
			return st, false, &api.NodeError{
				Node: source,
				Err:  fmt.Errorf("branch %d: %w", i, errs[i]),
			}
		}
	}

	merged := st
	for i, spec := range specs {
		if spec.Join == nil {
			continue
		}
		upd := spec.Join(results[i])
		var err error
		merged, err = g.Schema.Apply(merged, upd)
		if err != nil {
			return st, false, &api.NodeError{
				Node: source,
				Err:  fmt.Errorf("join of branch %d: %w", i, err),
			}
		}
	}

	e.observer.OnBranchesJoined(ctx, run, source, n, false, elapsed)
	if record {
		e.appendEvent(ctx, run, api.EventBranchesJoined, source, step, fmt.Sprintf("branches=%d", n))
	}
	return merged, false, nil
}
