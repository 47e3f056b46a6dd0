package utils

import (
	"sync"
)

// Job represents a task to be executed by a worker.
type Job struct {
	Name string
	Task func()
}

// WorkerPool runs controller requests off the console loop.
type WorkerPool struct {
	workers   int
	jobQueue  chan Job
	waitGroup sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool creates a new WorkerPool with the specified number of workers.
// The queue holds as many pending jobs as there are workers.
func NewWorkerPool(workers int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	pool := &WorkerPool{
		workers:  workers,
		jobQueue: make(chan Job, workers),
	}

	pool.waitGroup.Add(workers)
	for i := 0; i < workers; i++ {
		go pool.worker()
	}

	return pool
}

// worker processes jobs from the jobQueue.
func (wp *WorkerPool) worker() {
	defer wp.waitGroup.Done()
	for job := range wp.jobQueue {
		job.Task()
	}
}

// TrySubmit queues a job without blocking. It returns false when the queue is
// full or the pool has been shut down.
func (wp *WorkerPool) TrySubmit(name string, task func()) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return false
	}

	select {
	case wp.jobQueue <- Job{Name: name, Task: task}:
		return true
	default:
		return false
	}
}

// Shutdown waits for all queued jobs to finish and then closes the worker pool.
func (wp *WorkerPool) Shutdown() {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return
	}
	wp.closed = true
	close(wp.jobQueue)
	wp.mu.Unlock()

	wp.waitGroup.Wait()
}
