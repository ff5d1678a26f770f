package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/persistence"
	"github.com/stretchr/testify/require"
)

func newContext(flowId, conv string, state model.ContextState) *model.ExecutionContext {
	return &model.ExecutionContext{
		Id:             flowId + "-" + conv,
		FlowId:         flowId,
		ConversationId: conv,
		State:          state,
		Variables:      map[string]any{},
	}
}

func TestContextStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	for scenario, fn := range map[string]func(t *testing.T, s persistence.ContextStore){
		"create is idempotent while active": func(t *testing.T, s persistence.ContextStore) {
			first, created, err := s.Create(ctx, newContext("f", "c", model.RUNNING))
			require.NoError(t, err)
			require.True(t, created)
			require.Equal(t, int64(1), first.Version)
			dup := newContext("f", "c", model.RUNNING)
			dup.Id = "other"
			second, created, err := s.Create(ctx, dup)
			require.NoError(t, err)
			require.False(t, created)
			require.Equal(t, first.Id, second.Id)
		},
		"terminal context is superseded and archived": func(t *testing.T, s persistence.ContextStore) {
			first, _, err := s.Create(ctx, newContext("f", "c", model.RUNNING))
			require.NoError(t, err)
			first.State = model.COMPLETED
			require.NoError(t, s.Save(ctx, first))
			next := newContext("f", "c", model.RUNNING)
			next.Id = "second"
			_, created, err := s.Create(ctx, next)
			require.NoError(t, err)
			require.True(t, created)
			hist, err := s.History(ctx, next.Key())
			require.NoError(t, err)
			require.Len(t, hist, 1)
			require.Equal(t, first.Id, hist[0].Id)
		},
		"stale save is rejected": func(t *testing.T, s persistence.ContextStore) {
			ec, _, err := s.Create(ctx, newContext("f", "c", model.RUNNING))
			require.NoError(t, err)
			a, err := s.Load(ctx, ec.Key())
			require.NoError(t, err)
			b, err := s.Load(ctx, ec.Key())
			require.NoError(t, err)
			a.CurrentNodeId = "a"
			require.NoError(t, s.Save(ctx, a))
			require.Equal(t, int64(2), a.Version)
			b.CurrentNodeId = "b"
			err = s.Save(ctx, b)
			require.True(t, persistence.IsConflict(err))
			got, err := s.Load(ctx, ec.Key())
			require.NoError(t, err)
			require.Equal(t, "a", got.CurrentNodeId)
		},
		"load and save of unknown key": func(t *testing.T, s persistence.ContextStore) {
			_, err := s.Load(ctx, model.ContextKey{FlowId: "x", ConversationId: "y"})
			require.True(t, errors.Is(err, persistence.ErrNotFound))
			err = s.Save(ctx, newContext("x", "y", model.RUNNING))
			require.True(t, errors.Is(err, persistence.ErrNotFound))
		},
		"list due respects resumeAt": func(t *testing.T, s persistence.ContextStore) {
			ec, _, err := s.Create(ctx, newContext("f", "c", model.RUNNING))
			require.NoError(t, err)
			resume := now.Add(5 * time.Second)
			ec.State = model.SUSPENDED_TIMER
			ec.ResumeAt = &resume
			require.NoError(t, s.Save(ctx, ec))
			due, err := s.ListDue(ctx, now.Add(4*time.Second))
			require.NoError(t, err)
			require.Empty(t, due)
			due, err = s.ListDue(ctx, resume)
			require.NoError(t, err)
			require.Len(t, due, 1)
		},
		"list retry due": func(t *testing.T, s persistence.ContextStore) {
			ec, _, err := s.Create(ctx, newContext("f", "c", model.RUNNING))
			require.NoError(t, err)
			retryAt := now.Add(2 * time.Second)
			ec.State = model.SUSPENDED_CALL
			ec.PendingCall = &model.PendingCall{Id: "call", NodeId: "w", Attempt: 1, RetryAt: &retryAt}
			require.NoError(t, s.Save(ctx, ec))
			due, err := s.ListRetryDue(ctx, now)
			require.NoError(t, err)
			require.Empty(t, due)
			due, err = s.ListRetryDue(ctx, now.Add(3*time.Second))
			require.NoError(t, err)
			require.Len(t, due, 1)
			require.Equal(t, "call", due[0].PendingCall.Id)
		},
		"list stalled": func(t *testing.T, s persistence.ContextStore) {
			lease := now.Add(time.Minute)
			running := newContext("f1", "c", model.RUNNING)
			running.LeaseUntil = &lease
			_, _, err := s.Create(ctx, running)
			require.NoError(t, err)
			waiting := newContext("f2", "c", model.SUSPENDED_INPUT)
			waiting.LeaseUntil = &lease
			_, _, err = s.Create(ctx, waiting)
			require.NoError(t, err)

			stalled, err := s.ListStalled(ctx, now)
			require.NoError(t, err)
			require.Empty(t, stalled)
			stalled, err = s.ListStalled(ctx, lease)
			require.NoError(t, err)
			require.Len(t, stalled, 1)
			require.Equal(t, "f1", stalled[0].FlowId)
		},
		"list by conversation": func(t *testing.T, s persistence.ContextStore) {
			_, _, err := s.Create(ctx, newContext("f1", "c", model.RUNNING))
			require.NoError(t, err)
			_, _, err = s.Create(ctx, newContext("f2", "c", model.RUNNING))
			require.NoError(t, err)
			_, _, err = s.Create(ctx, newContext("f1", "other", model.RUNNING))
			require.NoError(t, err)
			list, err := s.ListByConversation(ctx, "c")
			require.NoError(t, err)
			require.Len(t, list, 2)
		},
		"returned contexts are copies": func(t *testing.T, s persistence.ContextStore) {
			ec, _, err := s.Create(ctx, newContext("f", "c", model.RUNNING))
			require.NoError(t, err)
			loaded, err := s.Load(ctx, ec.Key())
			require.NoError(t, err)
			loaded.Variables["x"] = 1
			again, err := s.Load(ctx, ec.Key())
			require.NoError(t, err)
			require.NotContains(t, again.Variables, "x")
		},
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, NewContextStore())
		})
	}
}
