package util

import (
	"sync"

	"github.com/mohitkumar/chatflow/logger"
	"go.uber.org/zap"
)

type Task func()

// WorkerPool runs dispatched tasks on a fixed number of goroutines.
type WorkerPool struct {
	name     string
	count    int
	tasks    chan Task
	stop     chan struct{}
	stopOnce sync.Once
	wg       *sync.WaitGroup
}

func NewWorkerPool(name string, count int, capacity int, wg *sync.WaitGroup) *WorkerPool {
	if count <= 0 {
		count = 1
	}
	return &WorkerPool{
		name:  name,
		count: count,
		tasks: make(chan Task, capacity),
		stop:  make(chan struct{}),
		wg:    wg,
	}
}

func (p *WorkerPool) Start() {
	for i := 0; i < p.count; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case task := <-p.tasks:
					p.run(id, task)
				case <-p.stop:
					logger.Info("stopping worker", zap.String("pool", p.name), zap.Int("worker", id))
					return
				}
			}
		}(i)
	}
	logger.Info("worker pool started", zap.String("pool", p.name), zap.Int("workers", p.count))
}

func (p *WorkerPool) run(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("task panicked", zap.String("pool", p.name), zap.Int("worker", id), zap.Any("panic", r))
		}
	}()
	task()
}

// Dispatch queues a task, blocking while the queue is full. It returns false
// once the pool is stopped. A task must not dispatch to the pool running it.
func (p *WorkerPool) Dispatch(task Task) bool {
	select {
	case <-p.stop:
		return false
	default:
	}
	select {
	case p.tasks <- task:
		return true
	case <-p.stop:
		return false
	}
}

func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}
