package services

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPoolRunsSubmittedJobs(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Stop()

	if pool.Size() != 2 {
		t.Errorf("expected size 2, got %d", pool.Size())
	}

	var ran atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		pool.Submit(func() {
			defer wg.Done()
			ran.Add(1)
		})
	}
	wg.Wait()

	if got := ran.Load(); got != 20 {
		t.Errorf("expected 20 jobs to run, got %d", got)
	}
}

func TestWorkerPoolRunsInlineWhenSaturated(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Stop()

	// Hand the blocking job to the worker directly so the single worker is
	// guaranteed busy before the next submission.
	started := make(chan struct{})
	release := make(chan struct{})
	pool.jobs <- func() {
		close(started)
		<-release
	}
	<-started

	ran := false
	pool.Submit(func() { ran = true })
	if !ran {
		t.Error("expected the job to run inline on the caller")
	}

	close(release)
}

func TestWorkerPoolStopWaitsForInflightJobs(t *testing.T) {
	pool := NewWorkerPool(1)

	started := make(chan struct{})
	var done atomic.Bool
	pool.jobs <- func() {
		close(started)
		time.Sleep(50 * time.Millisecond)
		done.Store(true)
	}
	<-started

	pool.Stop()
	if !done.Load() {
		t.Error("Stop returned before the in-flight job finished")
	}
}

func TestWorkerPoolSubmitAfterStop(t *testing.T) {
	pool := NewWorkerPool(1)
	pool.Stop()

	ran := false
	pool.Submit(func() { ran = true })
	if !ran {
		t.Error("expected post-Stop submissions to run inline")
	}
}

func TestDefaultPoolSize(t *testing.T) {
	t.Run("honors SCHEDULER_POOL_MAX", func(t *testing.T) {
		t.Setenv("SCHEDULER_POOL_MAX", "7")
		if got := DefaultPoolSize(); got != 7 {
			t.Errorf("expected 7, got %d", got)
		}
	})

	t.Run("floors at 32 workers", func(t *testing.T) {
		t.Setenv("SCHEDULER_POOL_MAX", "")
		if got := DefaultPoolSize(); got < 32 {
			t.Errorf("expected at least 32, got %d", got)
		}
	})
}
