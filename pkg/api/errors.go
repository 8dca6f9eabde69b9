package api

import (
	"errors"
	"fmt"
)

// ErrRecursionLimit is returned when a run executes more nodes than its
// step ceiling allows. It is fatal and non-retryable, distinct from a
// reviewer timeout: the workflow is halted where it stands and the last
// checkpoint keeps whatever progress was made.
var ErrRecursionLimit = errors.New("recursion limit exceeded")

// ErrThreadActive is returned when a second Run is attempted on a thread
// that already has a run in flight.
var ErrThreadActive = errors.New("thread already has an active run")

// NodeError wraps a failure inside a named node so callers can tell which
// node produced it.
type NodeError struct {
	Node NodeID
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %q: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }
