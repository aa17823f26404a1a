// Package scheduler fires the periodic league jobs: the daily mission
// finalization and the weekly rotation.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"fitness-league/internal/pkg/clock"
	"fitness-league/internal/pkg/lock"
)

// Schedule yields the next fire time strictly after a given instant.
type Schedule interface {
	Next(after time.Time) time.Time
}

// Daily fires every day at Hour:Minute:Second in Loc.
type Daily struct {
	Hour, Minute, Second int
	Loc                  *time.Location
}

// Next implements Schedule.
func (d Daily) Next(after time.Time) time.Time {
	local := after.In(d.Loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), d.Hour, d.Minute, d.Second, 0, d.Loc)
	if !next.After(after) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, d.Hour, d.Minute, d.Second, 0, d.Loc)
	}
	return next
}

// Weekly fires every week on Weekday at Hour:Minute:Second in Loc.
type Weekly struct {
	Weekday              time.Weekday
	Hour, Minute, Second int
	Loc                  *time.Location
}

// Next implements Schedule.
func (w Weekly) Next(after time.Time) time.Time {
	local := after.In(w.Loc)
	days := (int(w.Weekday) - int(local.Weekday()) + 7) % 7
	next := time.Date(local.Year(), local.Month(), local.Day()+days, w.Hour, w.Minute, w.Second, 0, w.Loc)
	if !next.After(after) {
		next = time.Date(local.Year(), local.Month(), local.Day()+days+7, w.Hour, w.Minute, w.Second, 0, w.Loc)
	}
	return next
}

// Job is a named periodic task. A tick that arrives while the previous run
// is still in flight is skipped.
type Job struct {
	Name  string
	Run   func(ctx context.Context) error
	locks *lock.KeyedLock
}

// NewJob creates a job guarded by locks. Jobs sharing a KeyedLock must have
// distinct names.
func NewJob(name string, locks *lock.KeyedLock, run func(ctx context.Context) error) *Job {
	return &Job{Name: name, Run: run, locks: locks}
}

// Trigger runs the job unless it is already running. It reports whether the
// job ran.
func (j *Job) Trigger(ctx context.Context) bool {
	if !j.locks.TryLock(j.Name) {
		log.Warn().Str("job", j.Name).Msg("Previous run still in flight, tick skipped")
		return false
	}
	defer j.locks.Unlock(j.Name)

	start := time.Now()
	if err := j.Run(ctx); err != nil {
		log.Error().Err(err).Str("job", j.Name).Dur("took", time.Since(start)).Msg("Job failed")
		return true
	}
	log.Info().Str("job", j.Name).Dur("took", time.Since(start)).Msg("Job completed")
	return true
}

// Run triggers job at every fire time of sched until ctx is cancelled. Each
// run happens on its own goroutine so a slow run never delays the timer.
// Run returns only after the runs it started have finished.
func Run(ctx context.Context, job *Job, sched Schedule, clk clock.Clock) {
	var running sync.WaitGroup
	defer running.Wait()

	for {
		next := sched.Next(clk.Now())
		wait := next.Sub(clk.Now())
		log.Info().Str("job", job.Name).Time("next", next).Msg("Job scheduled")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			running.Add(1)
			go func() {
				defer running.Done()
				job.Trigger(ctx)
			}()
		}
	}
}
