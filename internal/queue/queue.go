// Package queue runs watcher-originated analyses on a bounded worker
// pool so a burst of dropped archives cannot pile up unbounded work.
package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Job is one archive waiting for analysis.
type Job struct {
	ID          string
	ArchivePath string
}

// Handler processes a single job.
type Handler func(ctx context.Context, job Job) error

// Stats exposes current queue counters.
type Stats struct {
	Length      int
	Capacity    int
	WorkerCount int
	Processed   uint64
	Failed      uint64
}

// Queue is a bounded job queue with a fixed worker pool and a per-job
// timeout.
type Queue struct {
	jobs        chan Job
	handler     Handler
	workerCount int
	timeout     time.Duration
	started     bool
	mu          sync.RWMutex
	wg          sync.WaitGroup
	processed   uint64
	failed      uint64
}

// New creates a queue; handler runs on every accepted job.
func New(capacity, workerCount int, timeout time.Duration, handler Handler) *Queue {
	return &Queue{
		jobs:        make(chan Job, capacity),
		handler:     handler,
		workerCount: workerCount,
		timeout:     timeout,
	}
}

// Start launches the worker pool. Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()
	for i := 0; i < q.workerCount; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// Enqueue queues a job without blocking. Returns false when the queue is
// full or not yet started; the caller decides whether that matters.
func (q *Queue) Enqueue(j Job) bool {
	q.mu.RLock()
	started := q.started
	q.mu.RUnlock()
	if !started {
		log.Warn().Str("job", j.ID).Msg("enqueue before queue start")
		return false
	}
	select {
	case q.jobs <- j:
		return true
	default:
		log.Warn().Str("job", j.ID).Msg("queue full, dropping job")
		return false
	}
}

// Stop stops accepting jobs and waits for workers to drain until the
// context is done.
func (q *Queue) Stop(ctx context.Context) {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Stats returns current queue counters.
func (q *Queue) Stats() Stats {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return Stats{
		Length:      len(q.jobs),
		Capacity:    cap(q.jobs),
		WorkerCount: q.workerCount,
		Processed:   atomic.LoadUint64(&q.processed),
		Failed:      atomic.LoadUint64(&q.failed),
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q.jobs:
			if !ok {
				return
			}
			q.handle(ctx, j)
		}
	}
}

func (q *Queue) handle(ctx context.Context, j Job) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("job", j.ID).Interface("panic", r).Msg("job panic recovered")
		}
	}()

	jobCtx, cancel := context.WithTimeout(ctx, q.timeout)
	err := q.handler(jobCtx, j)
	cancel()

	atomic.AddUint64(&q.processed, 1)
	if err != nil {
		atomic.AddUint64(&q.failed, 1)
	}
	evt := log.Info()
	if err != nil {
		evt = log.Error().Err(err)
	}
	evt.Str("job", j.ID).Dur("duration", time.Since(start)).Msg("job finished")
}
