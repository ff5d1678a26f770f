package engine

import "github.com/mohitkumar/chatflow/util"

// Dispatcher runs interpreter work. The worker pool satisfies it in
// production.
type Dispatcher interface {
	Dispatch(task util.Task) bool
}

var _ Dispatcher = new(util.WorkerPool)

// InlineDispatcher runs each task on the calling goroutine.
type InlineDispatcher struct{}

func (InlineDispatcher) Dispatch(task util.Task) bool {
	task()
	return true
}
