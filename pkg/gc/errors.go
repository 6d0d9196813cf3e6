package gc

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPhase is wrapped by PhaseError.
var ErrInvalidPhase = errors.New("invalid collector phase")

// PhaseError reports a collector call made out of order.
type PhaseError struct {
	Op    string
	Phase Phase
	Want  []Phase
}

func (e *PhaseError) Error() string {
	want := make([]string, len(e.Want))
	for i, p := range e.Want {
		want[i] = p.String()
	}
	return fmt.Sprintf("gc %s: collector is %s, want %s", e.Op, e.Phase, strings.Join(want, " or "))
}

func (e *PhaseError) Unwrap() error {
	return ErrInvalidPhase
}

// NodeError is returned by NodeIterator.Next for a single node that could
// not be read. The collector counts it and moves on to the next node.
type NodeError struct {
	Path string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.Path, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}
