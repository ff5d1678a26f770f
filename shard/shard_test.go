package shard

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/persistence"
	"github.com/mohitkumar/chatflow/persistence/memory"
	"github.com/stretchr/testify/require"
)

func TestRing(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T, r *Ring){
		"partition is stable and in range": func(t *testing.T, r *Ring) {
			for i := 0; i < 100; i++ {
				conv := fmt.Sprintf("+4915%06d", i)
				p := r.Partition(conv)
				require.GreaterOrEqual(t, p, 0)
				require.Less(t, p, r.PartitionCount())
				require.Equal(t, p, r.Partition(conv))
			}
		},
		"empty ring has no owners": func(t *testing.T, r *Ring) {
			require.Equal(t, "", r.Owner(0))
			require.Empty(t, r.PartitionsOf("node-1"))
		},
		"single member owns everything": func(t *testing.T, r *Ring) {
			r.Join("node-1")
			r.Join("node-1")
			require.Len(t, r.PartitionsOf("node-1"), r.PartitionCount())
		},
		"members split the partitions": func(t *testing.T, r *Ring) {
			r.Join("node-1")
			r.Join("node-2")
			one, two := r.PartitionsOf("node-1"), r.PartitionsOf("node-2")
			require.Equal(t, r.PartitionCount(), len(one)+len(two))
			r.Leave("node-2")
			require.Len(t, r.PartitionsOf("node-1"), r.PartitionCount())
			require.Empty(t, r.PartitionsOf("node-2"))
		},
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, NewRing(8))
		})
	}
}

func TestShardedStore(t *testing.T) {
	ctx := context.Background()
	ring := NewRing(4)
	store := NewShardedStore(ring, func(int) persistence.ContextStore { return memory.NewContextStore() })
	require.Len(t, store.Shards(), 4)
	_, err := store.Shard(4)
	require.Error(t, err)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		resumeAt := now
		ec := &model.ExecutionContext{
			Id:             fmt.Sprintf("run-%d", i),
			FlowId:         "flow",
			ConversationId: fmt.Sprintf("conv-%d", i),
			Variables:      map[string]any{},
			State:          model.SUSPENDED_TIMER,
			ResumeAt:       &resumeAt,
		}
		_, created, err := store.Create(ctx, ec)
		require.NoError(t, err)
		require.True(t, created)
	}

	ec, err := store.Load(ctx, model.ContextKey{FlowId: "flow", ConversationId: "conv-7"})
	require.NoError(t, err)
	require.Equal(t, "run-7", ec.Id)
	sh, err := store.Shard(ring.Partition("conv-7"))
	require.NoError(t, err)
	_, err = sh.GetStorage().Load(ctx, ec.Key())
	require.NoError(t, err)

	due, err := store.ListDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 20)

	ec.State = model.COMPLETED
	ec.ResumeAt = nil
	require.NoError(t, store.Save(ctx, ec))
	due, err = store.ListDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 19)

	byConv, err := store.ListByConversation(ctx, "conv-7")
	require.NoError(t, err)
	require.Len(t, byConv, 1)
	require.Equal(t, model.COMPLETED, byConv[0].State)

	_, _, err = store.Create(ctx, &model.ExecutionContext{Id: "run-7b", FlowId: "flow", ConversationId: "conv-7", State: model.RUNNING})
	require.NoError(t, err)
	hist, err := store.History(ctx, ec.Key())
	require.NoError(t, err)
	require.Len(t, hist, 1)
	require.Equal(t, "run-7", hist[0].Id)
}
