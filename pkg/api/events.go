package api

import "time"

// EventType identifies a run history event.
type EventType string

const (
	EventRunStarted   EventType = "run.started"
	EventRunResumed   EventType = "run.resumed"
	EventRunCompleted EventType = "run.completed"
	EventRunFailed    EventType = "run.failed"

	EventNodeStarted   EventType = "node.started"
	EventNodeCompleted EventType = "node.completed"
	EventNodeFailed    EventType = "node.failed"

	EventBranchesStarted EventType = "branches.started"
	EventBranchesJoined  EventType = "branches.joined"
	EventBranchesDropped EventType = "branches.dropped"
)

// RunEvent is a minimal append-only history record for audit/debugging.
// It is intentionally small and stable; richer history can be layered later.
type RunEvent struct {
	ThreadID string
	RunID    string
	At       time.Time
	Type     EventType

	// Optional context.
	Graph string
	Node  NodeID
	Step  int

	// Small, human-oriented details (e.g. branch count, error string).
	// Keep this low-volume: do NOT dump state snapshots here.
	Detail string
}
