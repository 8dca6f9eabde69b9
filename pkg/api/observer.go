package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the graph runtime for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay workflow execution.
type Observer interface {
	// OnRunStart is called once when a run is first started, before the
	// entry node executes.
	OnRunStart(ctx context.Context, run *RunInfo)

	// OnRunCompleted is called when a run reaches End.
	OnRunCompleted(ctx context.Context, run *RunInfo)

	// OnRunFailed is called when a run transitions to StatusFailed.
	OnRunFailed(ctx context.Context, run *RunInfo, err error)

	// OnNodeStart is called before a node function executes. step is the
	// number of node executions consumed so far, including this one.
	OnNodeStart(ctx context.Context, run *RunInfo, node NodeID, step int)

	// OnNodeCompleted is called after a node function returns, for both
	// successes and failures (err != nil).
	OnNodeCompleted(ctx context.Context, run *RunInfo, node NodeID, step int, err error, duration time.Duration)

	// OnBranchesStart is called when a fan-out begins, with the branch count.
	OnBranchesStart(ctx context.Context, run *RunInfo, node NodeID, count int)

	// OnBranchesJoined is called after all branches complete and their
	// results have been merged (or discarded, when dropped is true).
	OnBranchesJoined(ctx context.Context, run *RunInfo, node NodeID, count int, dropped bool, duration time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnRunStart(ctx context.Context, run *RunInfo)                 {}
func (NoopObserver) OnRunCompleted(ctx context.Context, run *RunInfo)             {}
func (NoopObserver) OnRunFailed(ctx context.Context, run *RunInfo, err error)     {}
func (NoopObserver) OnNodeStart(ctx context.Context, run *RunInfo, node NodeID, step int) {
}
func (NoopObserver) OnNodeCompleted(ctx context.Context, run *RunInfo, node NodeID, step int, err error, d time.Duration) {
}
func (NoopObserver) OnBranchesStart(ctx context.Context, run *RunInfo, node NodeID, count int) {}
func (NoopObserver) OnBranchesJoined(ctx context.Context, run *RunInfo, node NodeID, count int, dropped bool, d time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRunStart(ctx context.Context, run *RunInfo) {
	for _, o := range c.observers {
		o.OnRunStart(ctx, run)
	}
}

func (c *CompositeObserver) OnRunCompleted(ctx context.Context, run *RunInfo) {
	for _, o := range c.observers {
		o.OnRunCompleted(ctx, run)
	}
}

func (c *CompositeObserver) OnRunFailed(ctx context.Context, run *RunInfo, err error) {
	for _, o := range c.observers {
		o.OnRunFailed(ctx, run, err)
	}
}

func (c *CompositeObserver) OnNodeStart(ctx context.Context, run *RunInfo, node NodeID, step int) {
	for _, o := range c.observers {
		o.OnNodeStart(ctx, run, node, step)
	}
}

func (c *CompositeObserver) OnNodeCompleted(ctx context.Context, run *RunInfo, node NodeID, step int, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnNodeCompleted(ctx, run, node, step, err, d)
	}
}

func (c *CompositeObserver) OnBranchesStart(ctx context.Context, run *RunInfo, node NodeID, count int) {
	for _, o := range c.observers {
		o.OnBranchesStart(ctx, run, node, count)
	}
}

func (c *CompositeObserver) OnBranchesJoined(ctx context.Context, run *RunInfo, node NodeID, count int, dropped bool, d time.Duration) {
	for _, o := range c.observers {
		o.OnBranchesJoined(ctx, run, node, count, dropped, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs run / node lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnRunStart(ctx context.Context, run *RunInfo) {
	o.Logger.InfoContext(ctx, "run_start",
		slog.String("graph", run.Graph),
		slog.String("thread", run.Thread),
		slog.String("run_id", run.ID),
	)
}

func (o *LoggingObserver) OnRunCompleted(ctx context.Context, run *RunInfo) {
	o.Logger.InfoContext(ctx, "run_completed",
		slog.String("graph", run.Graph),
		slog.String("thread", run.Thread),
		slog.String("run_id", run.ID),
		slog.Int("steps", run.Steps),
	)
}

func (o *LoggingObserver) OnRunFailed(ctx context.Context, run *RunInfo, err error) {
	o.Logger.ErrorContext(ctx, "run_failed",
		slog.String("graph", run.Graph),
		slog.String("thread", run.Thread),
		slog.String("run_id", run.ID),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnNodeStart(ctx context.Context, run *RunInfo, node NodeID, step int) {
	o.Logger.DebugContext(ctx, "node_start",
		slog.String("graph", run.Graph),
		slog.String("thread", run.Thread),
		slog.String("node", string(node)),
		slog.Int("step", step),
	)
}

func (o *LoggingObserver) OnNodeCompleted(ctx context.Context, run *RunInfo, node NodeID, step int, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "node_completed",
		slog.String("graph", run.Graph),
		slog.String("thread", run.Thread),
		slog.String("node", string(node)),
		slog.Int("step", step),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnBranchesStart(ctx context.Context, run *RunInfo, node NodeID, count int) {
	o.Logger.InfoContext(ctx, "branches_start",
		slog.String("graph", run.Graph),
		slog.String("thread", run.Thread),
		slog.String("node", string(node)),
		slog.Int("branches", count),
	)
}

func (o *LoggingObserver) OnBranchesJoined(ctx context.Context, run *RunInfo, node NodeID, count int, dropped bool, d time.Duration) {
	o.Logger.InfoContext(ctx, "branches_joined",
		slog.String("graph", run.Graph),
		slog.String("thread", run.Thread),
		slog.String("node", string(node)),
		slog.Int("branches", count),
		slog.Bool("dropped", dropped),
		slog.Duration("duration", d),
	)
}

// BasicMetrics collects simple counters and aggregate node durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	runsStarted       atomic.Int64
	runsCompleted     atomic.Int64
	runsFailed        atomic.Int64
	nodesCompleted    atomic.Int64
	branchesJoined    atomic.Int64
	totalNodeDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	RunsStarted    int64
	RunsCompleted  int64
	RunsFailed     int64
	PendingRuns    int64
	NodesCompleted int64
	BranchesJoined int64

	AvgNodeDuration time.Duration
}

func (m *BasicMetrics) OnRunStart(ctx context.Context, run *RunInfo) {
	m.runsStarted.Add(1)
}

func (m *BasicMetrics) OnRunCompleted(ctx context.Context, run *RunInfo) {
	m.runsCompleted.Add(1)
}

func (m *BasicMetrics) OnRunFailed(ctx context.Context, run *RunInfo, err error) {
	m.runsFailed.Add(1)
}

func (m *BasicMetrics) OnNodeCompleted(ctx context.Context, run *RunInfo, node NodeID, step int, err error, d time.Duration) {
	// Only count successful nodes for average duration.
	if err == nil {
		m.nodesCompleted.Add(1)
		m.totalNodeDuration.Add(d.Nanoseconds())
	}
}

func (m *BasicMetrics) OnBranchesJoined(ctx context.Context, run *RunInfo, node NodeID, count int, dropped bool, d time.Duration) {
	if !dropped {
		m.branchesJoined.Add(int64(count))
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.runsStarted.Load()
	completed := m.runsCompleted.Load()
	failed := m.runsFailed.Load()
	nodes := m.nodesCompleted.Load()
	totalNs := m.totalNodeDuration.Load()

	var avg time.Duration
	if nodes > 0 {
		avg = time.Duration(totalNs / nodes)
	}

	return BasicMetricsSnapshot{
		RunsStarted:     started,
		RunsCompleted:   completed,
		RunsFailed:      failed,
		PendingRuns:     started - completed - failed,
		NodesCompleted:  nodes,
		BranchesJoined:  m.branchesJoined.Load(),
		AvgNodeDuration: avg,
	}
}
