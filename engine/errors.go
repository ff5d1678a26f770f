package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrNoWaitingContext is returned when a reply arrives for a conversation
	// with no context waiting for input.
	ErrNoWaitingContext = errors.New("no context is waiting for input on this conversation")
	// ErrStaleCallback is returned when a call result no longer matches the
	// pending call of its context.
	ErrStaleCallback = errors.New("stale gateway callback")
)

// RuntimeError reports an interpreter failure that validation should have
// prevented, or a runaway flow.
type RuntimeError struct {
	FlowId string
	NodeId string
	Reason string
}

func (e RuntimeError) Error() string {
	return fmt.Sprintf("runtime error in flow %s at node %s: %s", e.FlowId, e.NodeId, e.Reason)
}
