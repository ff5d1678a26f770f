package shard

import (
	"github.com/mohitkumar/chatflow/persistence"
)

type Executor interface {
	Start()
	Stop()
}

// Shard is one partition of the context space together with the executors
// sweeping it.
type Shard struct {
	id        int
	storage   persistence.ContextStore
	executors map[string]Executor
}

func NewShard(id int, storage persistence.ContextStore) *Shard {
	return &Shard{
		id:        id,
		storage:   storage,
		executors: make(map[string]Executor),
	}
}

func (s *Shard) RegisterExecutor(name string, executor Executor) {
	s.executors[name] = executor
}

func (s *Shard) GetShardId() int {
	return s.id
}

func (s *Shard) GetStorage() persistence.ContextStore {
	return s.storage
}

func (s *Shard) Start() {
	for _, executor := range s.executors {
		executor.Start()
	}
}

func (s *Shard) Stop() {
	for _, executor := range s.executors {
		executor.Stop()
	}
}
