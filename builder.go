package weft

import (
	"fmt"

	"github.com/jtolonen/weft/pkg/api"
)

// GraphBuilder provides a fluent API for assembling workflow graphs:
//
//	g, err := weft.NewGraph("pipeline", schema).
//	    AddNode("fetch", fetch).
//	    AddNode("summarize", summarize).
//	    SetEntry("fetch").
//	    AddEdge("fetch", "summarize").
//	    AddEdge("summarize", weft.End).
//	    Compile()
//
// Structural mistakes that are plain programmer errors (empty ids, nil
// functions, duplicate nodes) panic immediately; everything else is caught
// by Compile.
type GraphBuilder struct {
	g *api.Graph
}

// NewGraph creates a builder for a graph with the given name and state
// schema.
func NewGraph(name string, schema *Schema) *GraphBuilder {
	return &GraphBuilder{
		g: &api.Graph{
			Name:         name,
			Schema:       schema,
			Nodes:        make(map[api.NodeID]api.NodeDefinition),
			Static:       make(map[api.NodeID][]api.NodeID),
			Conditionals: make(map[api.NodeID]api.Dispatcher),
		},
	}
}

// AddNode adds a named node. The first node added becomes the entry unless
// SetEntry overrides it.
func (b *GraphBuilder) AddNode(id NodeID, fn NodeFunc) *GraphBuilder {
	return b.addNode(id, fn, nil)
}

// AddNodeWithRetry adds a node that is retried under the given policy.
func (b *GraphBuilder) AddNodeWithRetry(id NodeID, fn NodeFunc, retry RetryPolicy) *GraphBuilder {
	// Copy so callers can mutate their RetryPolicy after the call without
	// affecting the stored definition.
	r := retry
	return b.addNode(id, fn, &r)
}

func (b *GraphBuilder) addNode(id NodeID, fn NodeFunc, retry *RetryPolicy) *GraphBuilder {
	if id == "" || id == End {
		panic("weft: node id must not be empty or the End sentinel")
	}
	if fn == nil {
		panic(fmt.Sprintf("weft: node %q has nil function", id))
	}
	if _, dup := b.g.Nodes[id]; dup {
		panic(fmt.Sprintf("weft: node %q added twice", id))
	}
	b.g.Nodes[id] = api.NodeDefinition{ID: id, Fn: fn, Retry: retry}
	if b.g.Entry == "" {
		b.g.Entry = id
	}
	return b
}

// AddEdge adds a static transition from one node to another. A node may
// declare several static successors; they all run in the next pass.
func (b *GraphBuilder) AddEdge(from, to NodeID) *GraphBuilder {
	b.g.Static[from] = append(b.g.Static[from], to)
	return b
}

// AddConditionalEdge routes from a node through a dispatcher that inspects
// the state and returns the route to take.
func (b *GraphBuilder) AddConditionalEdge(from NodeID, d Dispatcher) *GraphBuilder {
	if d == nil {
		panic(fmt.Sprintf("weft: conditional edge from %q has nil dispatcher", from))
	}
	if _, dup := b.g.Conditionals[from]; dup {
		panic(fmt.Sprintf("weft: node %q already has a conditional edge", from))
	}
	b.g.Conditionals[from] = d
	return b
}

// AddBarrierEdge gates to on the completion of all from nodes. The target
// runs once, after the last predecessor finishes.
func (b *GraphBuilder) AddBarrierEdge(from []NodeID, to NodeID) *GraphBuilder {
	b.g.Barriers = append(b.g.Barriers, api.BarrierEdge{From: append([]NodeID(nil), from...), To: to})
	return b
}

// SetEntry names the node a run starts at.
func (b *GraphBuilder) SetEntry(id NodeID) *GraphBuilder {
	b.g.Entry = id
	return b
}

// SetAbortField names a bool Overwrite field in the schema. Once a node sets
// it, every later conditional dispatch routes to End and pending branch
// results are dropped.
func (b *GraphBuilder) SetAbortField(name string) *GraphBuilder {
	b.g.AbortField = name
	return b
}

// Compile validates the assembled graph and returns it. The returned Graph
// is immutable and safe for concurrent runs.
func (b *GraphBuilder) Compile() (*Graph, error) {
	if err := b.g.Validate(); err != nil {
		return nil, err
	}
	return b.g, nil
}

// MustCompile is like Compile but panics on error. Useful for initialization
// in main().
func (b *GraphBuilder) MustCompile() *Graph {
	g, err := b.Compile()
	if err != nil {
		panic(err)
	}
	return g
}

// Register compiles the graph and registers it with the runtime.
func (b *GraphBuilder) Register(rt Runtime) error {
	g, err := b.Compile()
	if err != nil {
		return err
	}
	return rt.RegisterGraph(g)
}
