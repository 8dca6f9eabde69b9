package weft

import (
	"context"
	"database/sql"

	"github.com/jtolonen/weft/internal/engine"
	"github.com/jtolonen/weft/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Runtime              = api.Runtime
	Graph                = api.Graph
	Schema               = api.Schema
	Field                = api.Field
	MergePolicy          = api.MergePolicy
	State                = api.State
	Update               = api.Update
	NodeID               = api.NodeID
	NodeFunc             = api.NodeFunc
	Dispatcher           = api.Dispatcher
	Route                = api.Route
	BranchSpec           = api.BranchSpec
	RetryPolicy          = api.RetryPolicy
	RunInfo              = api.RunInfo
	RunOptions           = api.RunOptions
	RunStatus            = api.RunStatus
	RunEvent             = api.RunEvent
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export constructors and route helpers.

var (
	NewSchema            = api.NewSchema
	Goto                 = api.Goto
	Stop                 = api.Stop
	FanOut               = api.FanOut
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export sentinel errors.

var (
	ErrRecursionLimit = api.ErrRecursionLimit
	ErrThreadActive   = api.ErrThreadActive
)

// Re-export common constants for convenience.

const (
	End = api.End

	Overwrite = api.Overwrite
	Append    = api.Append

	StatusRunning   = api.StatusRunning
	StatusCompleted = api.StatusCompleted
	StatusFailed    = api.StatusFailed

	DefaultRecursionLimit = api.DefaultRecursionLimit
)

// Runtime constructors. These wrap the internal/engine package so external
// callers never need to import internal packages.

// NewInMemoryRuntime returns a Runtime backed entirely by in-memory stores.
func NewInMemoryRuntime() Runtime {
	return engine.NewInMemoryRuntime()
}

// NewInMemoryRuntimeWithObserver returns an in-memory Runtime with the given
// Observer.
func NewInMemoryRuntimeWithObserver(obs Observer) Runtime {
	return engine.NewInMemoryRuntimeWithObserver(obs)
}

// NewSQLiteRuntime returns a Runtime that persists checkpoints and run
// events in a SQLite database. Graphs are kept in memory.
func NewSQLiteRuntime(db *sql.DB) (Runtime, error) {
	return engine.NewSQLiteRuntime(db)
}

// NewSQLiteRuntimeWithObserver returns a SQLite-backed Runtime with the
// given Observer.
func NewSQLiteRuntimeWithObserver(db *sql.DB, obs Observer) (Runtime, error) {
	return engine.NewSQLiteRuntimeWithObserver(db, obs)
}

// Convenience helpers that just forward to the underlying Runtime.

// Run runs a registered graph synchronously on a thread.
func Run(ctx context.Context, rt Runtime, graph, threadID string, initial Update, opts RunOptions) (*RunInfo, error) {
	return rt.Run(ctx, graph, threadID, initial, opts)
}

// Resume continues a graph from the thread's last checkpoint, which
// records both the state and the nodes still pending.
func Resume(ctx context.Context, rt Runtime, graph, threadID string, opts RunOptions) (*RunInfo, error) {
	return rt.Resume(ctx, graph, threadID, opts)
}

// StateOf loads the latest checkpointed state for a thread.
func StateOf(ctx context.Context, rt Runtime, threadID string) (State, int, error) {
	return rt.StateOf(ctx, threadID)
}

// History returns the run event records for a thread.
func History(ctx context.Context, rt Runtime, threadID string) ([]RunEvent, error) {
	return rt.History(ctx, threadID)
}
