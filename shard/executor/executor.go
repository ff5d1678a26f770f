package executor

import (
	"context"
	"time"

	"github.com/mohitkumar/chatflow/model"
)

// Resumer is the part of the interpreter the sweep executors drive.
type Resumer interface {
	Now() time.Time
	ResumeTimer(ctx context.Context, key model.ContextKey) (*model.ExecutionContext, error)
	RetryCall(ctx context.Context, key model.ContextKey) (*model.ExecutionContext, error)
	RecoverStalled(ctx context.Context, key model.ContextKey) (*model.ExecutionContext, error)
}
