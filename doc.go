// Package weft provides a lightweight, embeddable workflow graph runtime
// for Go.
//
// Weft is designed for multi-stage content pipelines that mix model calls,
// parallel fan-out work, and human review steps, without introducing heavy
// infrastructure. It runs fully in Go, persists state through pluggable
// backends, and integrates cleanly into existing codebases.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Schema declares the state fields and how node updates merge into
//     them (Overwrite or Append).
//  2. Graph is a set of nodes connected by static, conditional, and
//     barrier edges, built with a GraphBuilder and compiled once.
//  3. Runtime registers graphs, drives runs on named threads, and writes
//     a checkpoint after every node so a crashed process can resume.
//  4. Worker consumes queued tasks (start a run, deliver a reviewer
//     reply) so runs can be driven asynchronously.
//  5. LocalRunner is an in-memory runtime + queue + worker for development
//     and tests; NewSQLiteBundle is the durable equivalent.
//
// Nodes return partial updates rather than whole states, conditional edges
// resolve routes by inspecting the state, and fan-out routes run isolated
// branch sub-graphs whose results are joined in a deterministic order.
// Long-running runs are bounded by a per-run recursion limit and can be
// aborted cooperatively through a designated state field.
//
// # Human Review
//
// The pkg/review package connects a run to a human reviewer through a
// polled message channel, and the report package builds a complete
// multi-analyst research-report workflow on top of these pieces.
//
// See the examples directory for runnable demonstrations.
package weft
