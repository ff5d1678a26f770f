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

var _ shard.Executor = new(timeoutExecutor)

// timeoutExecutor hands contexts whose lease expired back to the engine:
// runs whose worker died and calls whose result never arrived.
type timeoutExecutor struct {
	shardId int
	storage persistence.ContextStore
	engine  Resumer
	tw      *util.TickWorker
}

func NewTimeoutExecutor(sh *shard.Shard, engine Resumer, interval time.Duration, wg *sync.WaitGroup) *timeoutExecutor {
	ex := &timeoutExecutor{
		shardId: sh.GetShardId(),
		storage: sh.GetStorage(),
		engine:  engine,
	}
	ex.tw = util.NewTickWorker("timeout-executor-"+shard.PartitionName(ex.shardId), interval, func() { ex.handle() }, wg)
	return ex
}

func (ex *timeoutExecutor) Start() {
	if ex.IsRunning() {
		return
	}
	ex.tw.Start()
}

func (ex *timeoutExecutor) IsRunning() bool {
	return ex.tw.IsRunning()
}

func (ex *timeoutExecutor) Stop() {
	if !ex.IsRunning() {
		return
	}
	ex.tw.Stop()
}

func (ex *timeoutExecutor) handle() int {
	ctx := context.Background()
	stalled, err := ex.storage.ListStalled(ctx, ex.engine.Now())
	if err != nil {
		logger.Error("error while polling stalled contexts", zap.Int("shard", ex.shardId), zap.Error(err))
		return 0
	}
	recovered := 0
	for _, ec := range stalled {
		if _, err := ex.engine.RecoverStalled(ctx, ec.Key()); err != nil {
			if !persistence.IsConflict(err) {
				logger.Error("error recovering stalled context", zap.Int("shard", ex.shardId), zap.String("key", ec.Key().String()), zap.Error(err))
			}
			continue
		}
		recovered++
	}
	return recovered
}
