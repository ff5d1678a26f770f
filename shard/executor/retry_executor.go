package executor

import (
	"context"
	"sync"
	"time"

	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/persistence"
	"github.com/mohitkumar/chatflow/shard"
	"github.com/mohitkumar/chatflow/util"
	"go.uber.org/zap"
)

var _ shard.Executor = new(retryExecutor)

type retryExecutor struct {
	shardId int
	storage persistence.ContextStore
	engine  Resumer
	tw      *util.TickWorker
}

func NewRetryExecutor(sh *shard.Shard, engine Resumer, interval time.Duration, wg *sync.WaitGroup) *retryExecutor {
	ex := &retryExecutor{
		shardId: sh.GetShardId(),
		storage: sh.GetStorage(),
		engine:  engine,
	}
	ex.tw = util.NewTickWorker("retry-executor-"+shard.PartitionName(ex.shardId), interval, func() { ex.handle() }, wg)
	return ex
}

func (ex *retryExecutor) Start() {
	if ex.IsRunning() {
		return
	}
	ex.tw.Start()
}

func (ex *retryExecutor) IsRunning() bool {
	return ex.tw.IsRunning()
}

func (ex *retryExecutor) Stop() {
	if !ex.IsRunning() {
		return
	}
	ex.tw.Stop()
}

func (ex *retryExecutor) handle() int {
	ctx := context.Background()
	due, err := ex.storage.ListRetryDue(ctx, ex.engine.Now())
	if err != nil {
		logger.Error("error while polling call retries", zap.Int("shard", ex.shardId), zap.Error(err))
		return 0
	}
	retried := 0
	for _, ec := range due {
		if _, err := ex.engine.RetryCall(ctx, ec.Key()); err != nil {
			if !persistence.IsConflict(err) {
				logger.Error("error retrying call", zap.Int("shard", ex.shardId), zap.String("key", ec.Key().String()), zap.Error(err))
			}
			continue
		}
		retried++
	}
	return retried
}
