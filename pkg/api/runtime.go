package api

import "context"

// RunStatus is the lifecycle state of a workflow run.
type RunStatus string

const (
	StatusRunning   RunStatus = "RUNNING"
	StatusCompleted RunStatus = "COMPLETED"
	StatusFailed    RunStatus = "FAILED"
)

// RunInfo describes one run of a graph on a thread.
type RunInfo struct {
	ID     string
	Graph  string
	Thread string
	Status RunStatus
	Err    error

	// Steps is the number of node executions the run consumed against its
	// recursion limit.
	Steps int
}

// RunOptions tunes a single run.
type RunOptions struct {
	// RecursionLimit is the hard ceiling on node executions for the run
	// (and, independently, for each fan-out branch). Zero means the
	// default of 50.
	RecursionLimit int
}

// DefaultRecursionLimit is the step ceiling applied when RunOptions does
// not override it.
const DefaultRecursionLimit = 50

// Runtime drives graph runs and owns checkpointing. The produced result is
// not returned by Run; it is read back with StateOf after the run finishes,
// so a crashed process can recover it the same way.
type Runtime interface {
	// RegisterGraph registers a compiled graph by name.
	RegisterGraph(g *Graph) error

	// Run executes the named graph on the given thread. The initial update
	// seeds the state through the schema's reducers. Only one run per
	// thread may be in flight; a second Run returns ErrThreadActive.
	Run(ctx context.Context, graph string, threadID string, initial Update, opts RunOptions) (*RunInfo, error)

	// StateOf loads the latest checkpointed state for a thread.
	StateOf(ctx context.Context, threadID string) (State, int, error)

	// Resume continues the named graph from the thread's last checkpoint,
	// which records both the state and the nodes still pending. A crash
	// mid-step repeats at most the node that was in flight; resuming a
	// finished run executes nothing.
	Resume(ctx context.Context, graph string, threadID string, opts RunOptions) (*RunInfo, error)

	// History returns the append-only run event records for a thread.
	History(ctx context.Context, threadID string) ([]RunEvent, error)

	// Active reports whether a run is currently in flight on the thread.
	Active(threadID string) bool
}
