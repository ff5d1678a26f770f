package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mohitkumar/chatflow/model"
)

var ErrNotFound = errors.New("not found")

type StorageLayerError struct {
	Message string
}

func (e StorageLayerError) Error() string {
	return fmt.Sprintf("storage layer error %s", e.Message)
}

// ConcurrencyConflictError reports a compare-and-set that lost against a
// concurrent writer.
type ConcurrencyConflictError struct {
	Key      string
	Expected int64
	Actual   int64
}

func (e ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrent modification of %s: expected version %d, found %d", e.Key, e.Expected, e.Actual)
}

func IsConflict(err error) bool {
	var ce ConcurrencyConflictError
	return errors.As(err, &ce)
}

// ContextStore holds execution contexts. At most one context exists per
// (flowId, conversationId); Save is a compare-and-set on Version.
type ContextStore interface {
	// Load returns ErrNotFound when no context exists for the key.
	Load(ctx context.Context, key model.ContextKey) (*model.ExecutionContext, error)
	// Create stores ec unless an active context already exists for its key,
	// in which case the existing context is returned with created=false. A
	// terminal predecessor is moved to history.
	Create(ctx context.Context, ec *model.ExecutionContext) (*model.ExecutionContext, bool, error)
	// Save replaces the stored context when its version equals ec.Version
	// and increments ec.Version on success.
	Save(ctx context.Context, ec *model.ExecutionContext) error
	ListDue(ctx context.Context, now time.Time) ([]*model.ExecutionContext, error)
	ListRetryDue(ctx context.Context, now time.Time) ([]*model.ExecutionContext, error)
	// ListStalled returns in-flight contexts whose lease expired at now.
	ListStalled(ctx context.Context, now time.Time) ([]*model.ExecutionContext, error)
	ListByConversation(ctx context.Context, conversationId string) ([]*model.ExecutionContext, error)
	History(ctx context.Context, key model.ContextKey) ([]*model.ExecutionContext, error)
}

// IsDue reports whether a timer-suspended context should resume at now.
func IsDue(ec *model.ExecutionContext, now time.Time) bool {
	return ec.State == model.SUSPENDED_TIMER && ec.ResumeAt != nil && !ec.ResumeAt.After(now)
}

// IsRetryDue reports whether the pending call of ec is due for another attempt.
func IsRetryDue(ec *model.ExecutionContext, now time.Time) bool {
	return ec.State == model.SUSPENDED_CALL && ec.PendingCall != nil &&
		ec.PendingCall.RetryAt != nil && !ec.PendingCall.RetryAt.After(now)
}

// IsInFlight reports whether the engine owes ec more work without any
// outside event: it is running, or its pending call is out.
func IsInFlight(ec *model.ExecutionContext) bool {
	switch ec.State {
	case model.RUNNING:
		return true
	case model.SUSPENDED_CALL:
		return ec.PendingCall != nil && ec.PendingCall.RetryAt == nil
	}
	return false
}

// IsStalled reports whether an in-flight context made no progress before
// its lease ran out.
func IsStalled(ec *model.ExecutionContext, now time.Time) bool {
	return IsInFlight(ec) && ec.LeaseUntil != nil && !ec.LeaseUntil.After(now)
}
