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

var _ shard.Executor = new(delayExecutor)

// delayExecutor resumes the timer-suspended contexts of one shard once
// their resume time has passed.
type delayExecutor struct {
	shardId int
	storage persistence.ContextStore
	engine  Resumer
	tw      *util.TickWorker
}

func NewDelayExecutor(sh *shard.Shard, engine Resumer, interval time.Duration, wg *sync.WaitGroup) *delayExecutor {
	ex := &delayExecutor{
		shardId: sh.GetShardId(),
		storage: sh.GetStorage(),
		engine:  engine,
	}
	ex.tw = util.NewTickWorker("delay-executor-"+shard.PartitionName(ex.shardId), interval, func() { ex.handle() }, wg)
	return ex
}

func (ex *delayExecutor) Start() {
	if ex.IsRunning() {
		return
	}
	ex.tw.Start()
}

func (ex *delayExecutor) IsRunning() bool {
	return ex.tw.IsRunning()
}

func (ex *delayExecutor) Stop() {
	if !ex.IsRunning() {
		return
	}
	ex.tw.Stop()
}

// handle resumes every due context and reports how many it resumed.
func (ex *delayExecutor) handle() int {
	ctx := context.Background()
	due, err := ex.storage.ListDue(ctx, ex.engine.Now())
	if err != nil {
		logger.Error("error while polling due timers", zap.Int("shard", ex.shardId), zap.Error(err))
		return 0
	}
	resumed := 0
	for _, ec := range due {
		if _, err := ex.engine.ResumeTimer(ctx, ec.Key()); err != nil {
			if !persistence.IsConflict(err) {
				logger.Error("error resuming timer", zap.Int("shard", ex.shardId), zap.String("key", ec.Key().String()), zap.Error(err))
			}
			continue
		}
		resumed++
	}
	return resumed
}
