package enrichment

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrPoolClosed is returned by Submit once the pool's context is done.
var ErrPoolClosed = errors.New("worker pool is shutting down")

// Task represents a unit of work
type Task func(ctx context.Context) error

// WorkerPool runs tasks on a fixed number of goroutines. Submit must not be
// called after Wait.
type WorkerPool struct {
	workerCount int
	taskQueue   chan Task
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	closeOnce   sync.Once
	logger      *slog.Logger
}

// NewWorkerPool creates a pool with specified number of workers. Cancelling
// ctx stops the workers.
func NewWorkerPool(ctx context.Context, workerCount int, logger *slog.Logger) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		workerCount: workerCount,
		taskQueue:   make(chan Task, workerCount*2),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
	}
}

// Start launches worker goroutines
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
	wp.logger.Debug("worker_pool_started", "workers", wp.workerCount)
}

// Submit queues a task, blocking while the queue is full.
func (wp *WorkerPool) Submit(task Task) error {
	if wp.ctx.Err() != nil {
		return ErrPoolClosed
	}
	select {
	case wp.taskQueue <- task:
		return nil
	case <-wp.ctx.Done():
		return ErrPoolClosed
	}
}

// Wait closes the queue and blocks until the workers drain it.
func (wp *WorkerPool) Wait() {
	wp.closeOnce.Do(func() { close(wp.taskQueue) })
	wp.wg.Wait()
	wp.cancel()
}

// Shutdown cancels all workers; queued tasks are dropped.
func (wp *WorkerPool) Shutdown() {
	wp.cancel()
	wp.Wait()
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for {
		select {
		case task, ok := <-wp.taskQueue:
			if !ok {
				return
			}
			if err := task(wp.ctx); err != nil {
				wp.logger.Warn("worker_task_failed", "worker", id, "error", err)
			}

		case <-wp.ctx.Done():
			return
		}
	}
}
