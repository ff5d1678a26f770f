package redis

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	rd "github.com/go-redis/redis/v9"
	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/persistence"
	"github.com/mohitkumar/chatflow/util"
	"go.uber.org/zap"
)

const (
	CONTEXT_KEY      string = "CTX"
	DUE_KEY          string = "DUE"
	RETRY_KEY        string = "RETRY"
	CONVERSATION_KEY string = "CONV"
	HISTORY_KEY      string = "HIST"
	STALL_KEY        string = "STALL"
)

// createAttempts bounds how often Create re-reads a key that changed under
// its watch before giving up with a conflict.
const createAttempts = 5

var _ persistence.ContextStore = new(contextStore)

// contextStore keeps one JSON document per context and sorted sets, scored by
// due time in milliseconds, indexing timer and retry suspensions.
type contextStore struct {
	*baseDao
	partition      string
	encoderDecoder util.EncoderDecoder[model.ExecutionContext]
}

func NewContextStore(client rd.UniversalClient, namespace string, partition string) *contextStore {
	return &contextStore{
		baseDao:        newBaseDao(client, namespace),
		partition:      partition,
		encoderDecoder: util.NewJsonEncoderDecoder[model.ExecutionContext](),
	}
}

func (r *contextStore) contextKey(key model.ContextKey) string {
	return r.getNamespaceKey(CONTEXT_KEY, r.partition, key.String())
}

func (r *contextStore) Load(ctx context.Context, key model.ContextKey) (*model.ExecutionContext, error) {
	data, err := r.redisClient.Get(ctx, r.contextKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.ErrNotFound
		}
		logger.Error("error in loading context", zap.String("key", key.String()), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return r.encoderDecoder.Decode(data)
}

func (r *contextStore) Create(ctx context.Context, ec *model.ExecutionContext) (*model.ExecutionContext, bool, error) {
	key := r.contextKey(ec.Key())
	var existing *model.ExecutionContext
	created := false
	create := func(tx *rd.Tx) error {
		existing = nil
		created = false
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, rd.Nil) {
			return err
		}
		if err == nil {
			existing, err = r.encoderDecoder.Decode(data)
			if err != nil {
				return err
			}
			if existing.State.IsActive() {
				return nil
			}
		}
		next := ec.Clone()
		next.Version = 1
		encoded, err := r.encoderDecoder.Encode(*next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
			if existing != nil {
				pipe.RPush(ctx, r.getNamespaceKey(HISTORY_KEY, r.partition, ec.Key().String()), data)
			}
			pipe.Set(ctx, key, encoded, 0)
			pipe.SAdd(ctx, r.getNamespaceKey(CONVERSATION_KEY, r.partition, ec.ConversationId), ec.FlowId)
			r.index(ctx, pipe, next)
			return nil
		})
		if err == nil {
			created = true
		}
		return err
	}
	var err error
	for attempt := 0; attempt < createAttempts; attempt++ {
		// a concurrent create that won leaves an active context for the next read
		if err = r.redisClient.Watch(ctx, create, key); !errors.Is(err, rd.TxFailedErr) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, rd.TxFailedErr) {
			return nil, false, persistence.ConcurrencyConflictError{Key: ec.Key().String()}
		}
		logger.Error("error in creating context", zap.String("key", ec.Key().String()), zap.Error(err))
		return nil, false, persistence.StorageLayerError{Message: err.Error()}
	}
	if !created {
		return existing, false, nil
	}
	ec.Version = 1
	return ec, true, nil
}

func (r *contextStore) Save(ctx context.Context, ec *model.ExecutionContext) error {
	key := r.contextKey(ec.Key())
	err := r.redisClient.Watch(ctx, func(tx *rd.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, rd.Nil) {
				return persistence.ErrNotFound
			}
			return err
		}
		stored, err := r.encoderDecoder.Decode(data)
		if err != nil {
			return err
		}
		if stored.Version != ec.Version || stored.Id != ec.Id {
			return persistence.ConcurrencyConflictError{Key: ec.Key().String(), Expected: ec.Version, Actual: stored.Version}
		}
		next := ec.Clone()
		next.Version++
		encoded, err := r.encoderDecoder.Encode(*next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			r.index(ctx, pipe, next)
			return nil
		})
		return err
	}, key)
	switch {
	case err == nil:
		ec.Version++
		return nil
	case errors.Is(err, rd.TxFailedErr):
		return persistence.ConcurrencyConflictError{Key: ec.Key().String(), Expected: ec.Version}
	case errors.Is(err, persistence.ErrNotFound), persistence.IsConflict(err):
		return err
	}
	logger.Error("error in saving context", zap.String("key", ec.Key().String()), zap.Error(err))
	return persistence.StorageLayerError{Message: err.Error()}
}

// index keeps the due, retry and stall sorted sets in step with the context state.
func (r *contextStore) index(ctx context.Context, pipe rd.Pipeliner, ec *model.ExecutionContext) {
	member := ec.Key().String()
	dueKey := r.getNamespaceKey(DUE_KEY, r.partition)
	retryKey := r.getNamespaceKey(RETRY_KEY, r.partition)
	if ec.State == model.SUSPENDED_TIMER && ec.ResumeAt != nil {
		pipe.ZAdd(ctx, dueKey, rd.Z{Score: float64(ec.ResumeAt.UnixMilli()), Member: member})
	} else {
		pipe.ZRem(ctx, dueKey, member)
	}
	if ec.State == model.SUSPENDED_CALL && ec.PendingCall != nil && ec.PendingCall.RetryAt != nil {
		pipe.ZAdd(ctx, retryKey, rd.Z{Score: float64(ec.PendingCall.RetryAt.UnixMilli()), Member: member})
	} else {
		pipe.ZRem(ctx, retryKey, member)
	}
	stallKey := r.getNamespaceKey(STALL_KEY, r.partition)
	if persistence.IsInFlight(ec) && ec.LeaseUntil != nil {
		pipe.ZAdd(ctx, stallKey, rd.Z{Score: float64(ec.LeaseUntil.UnixMilli()), Member: member})
	} else {
		pipe.ZRem(ctx, stallKey, member)
	}
}

func (r *contextStore) ListDue(ctx context.Context, now time.Time) ([]*model.ExecutionContext, error) {
	return r.listScored(ctx, r.getNamespaceKey(DUE_KEY, r.partition), now, persistence.IsDue)
}

func (r *contextStore) ListRetryDue(ctx context.Context, now time.Time) ([]*model.ExecutionContext, error) {
	return r.listScored(ctx, r.getNamespaceKey(RETRY_KEY, r.partition), now, persistence.IsRetryDue)
}

func (r *contextStore) ListStalled(ctx context.Context, now time.Time) ([]*model.ExecutionContext, error) {
	return r.listScored(ctx, r.getNamespaceKey(STALL_KEY, r.partition), now, persistence.IsStalled)
}

func (r *contextStore) listScored(ctx context.Context, setKey string, now time.Time, pred func(*model.ExecutionContext, time.Time) bool) ([]*model.ExecutionContext, error) {
	members, err := r.redisClient.ZRangeByScore(ctx, setKey, &rd.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		logger.Error("error while reading sorted set", zap.String("set", setKey), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	keys := make([]string, 0, len(members))
	for _, m := range members {
		keys = append(keys, r.getNamespaceKey(CONTEXT_KEY, r.partition, m))
	}
	contexts, err := r.loadMany(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := contexts[:0]
	for _, ec := range contexts {
		if pred(ec, now) {
			out = append(out, ec)
		}
	}
	return out, nil
}

func (r *contextStore) ListByConversation(ctx context.Context, conversationId string) ([]*model.ExecutionContext, error) {
	flowIds, err := r.redisClient.SMembers(ctx, r.getNamespaceKey(CONVERSATION_KEY, r.partition, conversationId)).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	sort.Strings(flowIds)
	keys := make([]string, 0, len(flowIds))
	for _, flowId := range flowIds {
		keys = append(keys, r.contextKey(model.ContextKey{FlowId: flowId, ConversationId: conversationId}))
	}
	return r.loadMany(ctx, keys)
}

func (r *contextStore) History(ctx context.Context, key model.ContextKey) ([]*model.ExecutionContext, error) {
	items, err := r.redisClient.LRange(ctx, r.getNamespaceKey(HISTORY_KEY, r.partition, key.String()), 0, -1).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	out := make([]*model.ExecutionContext, 0, len(items))
	for _, item := range items {
		ec, err := r.encoderDecoder.Decode([]byte(item))
		if err != nil {
			return nil, err
		}
		out = append(out, ec)
	}
	return out, nil
}

func (r *contextStore) loadMany(ctx context.Context, keys []string) ([]*model.ExecutionContext, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	values, err := r.redisClient.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	out := make([]*model.ExecutionContext, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		ec, err := r.encoderDecoder.Decode([]byte(s))
		if err != nil {
			logger.Error("skipping undecodable context", zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		out = append(out, ec)
	}
	return out, nil
}
