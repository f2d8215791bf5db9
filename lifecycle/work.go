package lifecycle

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// WorkManager runs the asynchronous steps of the life cycle. Tasks must not
// run on the caller's goroutine: they call back into the machine.
type WorkManager interface {
	Queue(task func())
	Schedule(d time.Duration, task func()) (cancel func())
}

// GoWorkManager runs tasks on goroutines, at most limit at a time.
type GoWorkManager struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// NewGoWorkManager creates a manager running up to limit tasks at once.
func NewGoWorkManager(limit int64) *GoWorkManager {
	if limit < 1 {
		limit = 1
	}
	return &GoWorkManager{sem: semaphore.NewWeighted(limit)}
}

// Queue runs task on its own goroutine once a slot is free.
func (w *GoWorkManager) Queue(task func()) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer w.sem.Release(1)
		task()
	}()
}

// Schedule queues task after d.
func (w *GoWorkManager) Schedule(d time.Duration, task func()) func() {
	t := time.AfterFunc(d, func() { w.Queue(task) })
	return func() { t.Stop() }
}

// Wait blocks until every queued task has returned.
func (w *GoWorkManager) Wait() {
	w.wg.Wait()
}
