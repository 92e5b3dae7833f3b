package services

import (
	"runtime"
	"sync"

	"go-batchd/pkg/config"
)

// WorkerPool runs submitted jobs on a fixed set of worker goroutines. There is
// no queue: Submit hands the job to an idle worker or, when all workers are
// busy, runs it on the calling goroutine. The inline path is the saturation
// policy, so a saturated pool slows the poller down instead of buffering
// unbounded work.
type WorkerPool struct {
	jobs     chan func()
	quit     chan struct{}
	size     int
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// DefaultPoolSize returns the worker count: SCHEDULER_POOL_MAX when set,
// otherwise max(32, cores*16).
func DefaultPoolSize() int {
	if v := config.GetIntEnv("SCHEDULER_POOL_MAX", 0); v > 0 {
		return v
	}
	size := runtime.NumCPU() * 16
	if size < 32 {
		size = 32
	}
	return size
}

// NewWorkerPool creates a pool with the given worker count, or
// DefaultPoolSize when size is not positive.
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = DefaultPoolSize()
	}
	p := &WorkerPool{
		jobs: make(chan func()),
		quit: make(chan struct{}),
		size: size,
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case job := <-p.jobs:
			job()
		case <-p.quit:
			return
		}
	}
}

// Submit runs the job on an idle worker, or inline on the caller when no
// worker is free. It never blocks and never drops a job.
func (p *WorkerPool) Submit(job func()) {
	select {
	case p.jobs <- job:
	default:
		job()
	}
}

// Size returns the worker count.
func (p *WorkerPool) Size() int {
	return p.size
}

// Stop signals workers to exit and waits for in-flight jobs to finish.
// Submissions after Stop run inline on the caller.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
	})
	p.wg.Wait()
}
