// Package queue runs fire-and-forget side effects on a bounded worker pool.
// Tasks are retried with linear backoff; a task that keeps failing is logged
// and dropped, never reported back to the code that enqueued it.
package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// TaskFunc is one unit of work.
type TaskFunc func(ctx context.Context) error

// Config holds pool sizing and retry policy.
type Config struct {
	Workers     int
	Buffer      int
	MaxAttempts int
	Backoff     time.Duration
}

// Stats is a snapshot of queue counters.
type Stats struct {
	Enqueued  int64
	Succeeded int64
	Failed    int64
	Dropped   int64
	Retried   int64
}

type task struct {
	name string
	fn   TaskFunc
}

// Queue is a bounded in-process task queue.
type Queue struct {
	cfg   Config
	tasks chan task

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	start  sync.Once

	enqueued  atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
	retried   atomic.Int64
}

// New creates a queue. Zero values fall back to one worker, a buffer of 64
// tasks and a single attempt.
func New(cfg Config) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Queue{cfg: cfg, tasks: make(chan task, cfg.Buffer)}
}

// Start launches the workers. Tasks run with a context derived from ctx;
// cancelling it aborts pending retries. Calling Start more than once is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.start.Do(func() {
		q.ctx, q.cancel = context.WithCancel(ctx)
		for i := 0; i < q.cfg.Workers; i++ {
			q.wg.Add(1)
			go q.worker(i)
		}
		log.Info().Int("workers", q.cfg.Workers).Int("buffer", q.cfg.Buffer).Msg("Task queue started")
	})
}

// Enqueue schedules fn without blocking. It returns false when the queue is
// closed or the buffer is full; the task is then dropped and logged.
func (q *Queue) Enqueue(name string, fn TaskFunc) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.dropped.Add(1)
		log.Warn().Str("task", name).Msg("Task dropped, queue closed")
		return false
	}

	select {
	case q.tasks <- task{name: name, fn: fn}:
		q.enqueued.Add(1)
		return true
	default:
		q.dropped.Add(1)
		log.Warn().Str("task", name).Int("buffer", q.cfg.Buffer).Msg("Task dropped, queue full")
		return false
	}
}

// Close stops accepting tasks, waits for the buffered ones to finish and
// stops the workers.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	// Workers never started: drain inline so nothing accepted is lost.
	q.start.Do(func() {
		q.ctx, q.cancel = context.WithCancel(context.Background())
		q.wg.Add(1)
		go q.worker(0)
	})

	q.wg.Wait()
	q.cancel()
	log.Info().Interface("stats", q.Stats()).Msg("Task queue closed")
}

// Stats returns the current counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Enqueued:  q.enqueued.Load(),
		Succeeded: q.succeeded.Load(),
		Failed:    q.failed.Load(),
		Dropped:   q.dropped.Load(),
		Retried:   q.retried.Load(),
	}
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	for t := range q.tasks {
		q.run(id, t)
	}
}

func (q *Queue) run(worker int, t task) {
	var err error
	for attempt := 1; attempt <= q.cfg.MaxAttempts; attempt++ {
		err = q.invoke(t)
		if err == nil {
			q.succeeded.Add(1)
			return
		}
		if attempt == q.cfg.MaxAttempts {
			break
		}

		q.retried.Add(1)
		log.Warn().Err(err).
			Str("task", t.name).
			Int("worker", worker).
			Int("attempt", attempt).
			Msg("Task failed, retrying")

		if !q.sleep(time.Duration(attempt) * q.cfg.Backoff) {
			break
		}
	}

	q.failed.Add(1)
	log.Error().Err(err).Str("task", t.name).Int("worker", worker).Msg("Task failed permanently")
}

// invoke runs the task, turning a panic into an error so one bad task cannot
// take a worker down.
func (q *Queue) invoke(t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return t.fn(q.ctx)
}

func (q *Queue) sleep(d time.Duration) bool {
	if d <= 0 {
		return q.ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-q.ctx.Done():
		return false
	}
}
