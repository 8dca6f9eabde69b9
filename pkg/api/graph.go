package api

import (
	"context"
	"fmt"
	"time"
)

// NodeID names a node in a graph. The terminal sentinel End is reserved.
type NodeID string

// End is the terminal sentinel. Routing to End finishes the run (or the
// branch, inside a fan-out sub-graph).
const End NodeID = "__end__"

// NodeFunc is a single unit of work. It reads the current state and returns
// a partial update to be merged through the schema's reducers. A NodeFunc
// may block on an external call; it must honour ctx cancellation.
type NodeFunc func(ctx context.Context, st State) (Update, error)

// Dispatcher resolves a conditional edge. It inspects the state and returns
// the route to take next.
type Dispatcher func(ctx context.Context, st State) Route

// RouteKind discriminates the closed set of dispatch outcomes.
type RouteKind int

const (
	// RouteGoto continues at a single named node.
	RouteGoto RouteKind = iota

	// RouteStop finishes the run (routes to End).
	RouteStop

	// RouteFanOut expands into parallel branch sub-graph runs, one per
	// BranchSpec, joined deterministically in slice order.
	RouteFanOut
)

// Route is the outcome of a Dispatcher. Construct values with Goto, Stop,
// or FanOut; the zero Route is invalid.
type Route struct {
	Kind     RouteKind
	To       NodeID
	Branches []BranchSpec
}

// Goto routes to a single node.
func Goto(to NodeID) Route { return Route{Kind: RouteGoto, To: to} }

// Stop routes to the terminal sentinel.
func Stop() Route { return Route{Kind: RouteStop} }

// FanOut expands into one isolated branch per spec. Branch results are
// joined strictly in slice order, regardless of completion order. Once the
// join has been applied, execution continues at the after node.
func FanOut(branches []BranchSpec, after NodeID) Route {
	return Route{Kind: RouteFanOut, Branches: branches, To: after}
}

// BranchSpec describes one branch of a fan-out: the sub-graph to run, the
// seed for the branch's isolated state, and the join that folds the branch's
// final state back into the parent as a partial update.
type BranchSpec struct {
	Graph *Graph
	Init  Update
	Join  func(final State) Update
}

// RetryPolicy controls how a node is retried when it returns an error.
// MaxAttempts includes the first attempt. Backoff grows by Multiplier
// (default 2.0) between attempts, capped at MaxBackoff when set.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// NodeDefinition is a named node plus its optional retry policy.
type NodeDefinition struct {
	ID    NodeID
	Fn    NodeFunc
	Retry *RetryPolicy
}

// StaticEdge is a fixed transition. A node may declare several static
// successors; they all run in the next pass, in declaration order.
type StaticEdge struct {
	From NodeID
	To   NodeID
}

// BarrierEdge gates a node on the completion of all listed predecessors
// within the current pass. The runtime tracks per-predecessor completion
// rather than firing on the first arrival.
type BarrierEdge struct {
	From []NodeID
	To   NodeID
}

// Graph is a compiled, validated workflow graph. Build one with a
// GraphBuilder (see the root package); a compiled Graph is immutable and
// safe for concurrent runs.
type Graph struct {
	Name         string
	Schema       *Schema
	Entry        NodeID
	Nodes        map[NodeID]NodeDefinition
	Static       map[NodeID][]NodeID
	Conditionals map[NodeID]Dispatcher
	Barriers     []BarrierEdge

	// AbortField optionally names a bool Overwrite field consulted by the
	// runtime at every conditional-edge resolution and at fan-out joins.
	// Once the field is true, every dispatch routes to End.
	AbortField string
}

// Validate checks the graph for structural errors: unknown edge targets,
// missing entry node, nodes with both static and conditional successors,
// and barrier targets without node definitions.
func (g *Graph) Validate() error {
	if g.Name == "" {
		return fmt.Errorf("graph name is required")
	}
	if g.Schema == nil {
		return fmt.Errorf("graph %q: schema is required", g.Name)
	}
	if len(g.Nodes) == 0 {
		return fmt.Errorf("graph %q: at least one node is required", g.Name)
	}
	if _, ok := g.Nodes[g.Entry]; !ok {
		return fmt.Errorf("graph %q: entry node %q is not defined", g.Name, g.Entry)
	}
	known := func(id NodeID) bool {
		if id == End {
			return true
		}
		_, ok := g.Nodes[id]
		return ok
	}
	for from, tos := range g.Static {
		if !known(from) {
			return fmt.Errorf("graph %q: static edge from unknown node %q", g.Name, from)
		}
		if _, both := g.Conditionals[from]; both {
			return fmt.Errorf("graph %q: node %q has both static and conditional successors", g.Name, from)
		}
		for _, to := range tos {
			if !known(to) {
				return fmt.Errorf("graph %q: static edge %q -> unknown node %q", g.Name, from, to)
			}
		}
	}
	for from := range g.Conditionals {
		if !known(from) {
			return fmt.Errorf("graph %q: conditional edge from unknown node %q", g.Name, from)
		}
	}
	for _, b := range g.Barriers {
		if !known(b.To) || b.To == End {
			return fmt.Errorf("graph %q: barrier target %q is not a defined node", g.Name, b.To)
		}
		if len(b.From) < 2 {
			return fmt.Errorf("graph %q: barrier into %q needs at least two predecessors", g.Name, b.To)
		}
		for _, from := range b.From {
			if !known(from) || from == End {
				return fmt.Errorf("graph %q: barrier predecessor %q is not a defined node", g.Name, from)
			}
		}
	}
	if g.AbortField != "" {
		if _, ok := g.Schema.Policy(g.AbortField); !ok {
			return fmt.Errorf("graph %q: abort field %q is not in the schema", g.Name, g.AbortField)
		}
	}
	return nil
}

// Aborted reports whether the graph's abort field is set in the state.
func (g *Graph) Aborted(st State) bool {
	if g.AbortField == "" {
		return false
	}
	return GetOr(st, g.AbortField, false)
}
