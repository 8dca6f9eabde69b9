// Package api defines the public types of the weft graph runtime: state
// schemas and merge policies, nodes, edges and routes, run metadata, retry
// policies, observers, and the error taxonomy.
//
// Most applications import the root weft package, which re-exports
// everything here alongside the GraphBuilder and runtime constructors.
// Import this package directly only when building lower-level tooling.
package api
