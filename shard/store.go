package shard

import (
	"context"
	"fmt"
	"time"

	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/persistence"
)

var _ persistence.ContextStore = new(ShardedStore)

// ShardedStore routes every context to the store of its conversation's
// partition. Sweeps fan out over all partitions.
type ShardedStore struct {
	ring   *Ring
	shards []*Shard
}

// NewShardedStore builds one shard per ring partition using newStore.
func NewShardedStore(ring *Ring, newStore func(partition int) persistence.ContextStore) *ShardedStore {
	shards := make([]*Shard, ring.PartitionCount())
	for p := range shards {
		shards[p] = NewShard(p, newStore(p))
	}
	return &ShardedStore{ring: ring, shards: shards}
}

func (s *ShardedStore) Shards() []*Shard {
	return s.shards
}

func (s *ShardedStore) Shard(partition int) (*Shard, error) {
	if partition < 0 || partition >= len(s.shards) {
		return nil, fmt.Errorf("partition %d out of range [0, %d)", partition, len(s.shards))
	}
	return s.shards[partition], nil
}

func (s *ShardedStore) storeFor(conversationId string) persistence.ContextStore {
	return s.shards[s.ring.Partition(conversationId)].storage
}

func (s *ShardedStore) Load(ctx context.Context, key model.ContextKey) (*model.ExecutionContext, error) {
	return s.storeFor(key.ConversationId).Load(ctx, key)
}

func (s *ShardedStore) Create(ctx context.Context, ec *model.ExecutionContext) (*model.ExecutionContext, bool, error) {
	return s.storeFor(ec.ConversationId).Create(ctx, ec)
}

func (s *ShardedStore) Save(ctx context.Context, ec *model.ExecutionContext) error {
	return s.storeFor(ec.ConversationId).Save(ctx, ec)
}

func (s *ShardedStore) ListDue(ctx context.Context, now time.Time) ([]*model.ExecutionContext, error) {
	return s.collect(func(store persistence.ContextStore) ([]*model.ExecutionContext, error) {
		return store.ListDue(ctx, now)
	})
}

func (s *ShardedStore) ListRetryDue(ctx context.Context, now time.Time) ([]*model.ExecutionContext, error) {
	return s.collect(func(store persistence.ContextStore) ([]*model.ExecutionContext, error) {
		return store.ListRetryDue(ctx, now)
	})
}

func (s *ShardedStore) ListStalled(ctx context.Context, now time.Time) ([]*model.ExecutionContext, error) {
	return s.collect(func(store persistence.ContextStore) ([]*model.ExecutionContext, error) {
		return store.ListStalled(ctx, now)
	})
}

func (s *ShardedStore) ListByConversation(ctx context.Context, conversationId string) ([]*model.ExecutionContext, error) {
	return s.storeFor(conversationId).ListByConversation(ctx, conversationId)
}

func (s *ShardedStore) History(ctx context.Context, key model.ContextKey) ([]*model.ExecutionContext, error) {
	return s.storeFor(key.ConversationId).History(ctx, key)
}

func (s *ShardedStore) collect(list func(persistence.ContextStore) ([]*model.ExecutionContext, error)) ([]*model.ExecutionContext, error) {
	var out []*model.ExecutionContext
	for _, sh := range s.shards {
		res, err := list(sh.storage)
		if err != nil {
			return nil, err
		}
		out = append(out, res...)
	}
	return out, nil
}
