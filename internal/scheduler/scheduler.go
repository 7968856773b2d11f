// Package scheduler implements the scheduler & lifecycle component (C12):
// a single minute-resolution cron scheduler that ties together news
// collection, price polling, cache expiry, and position monitoring.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one unit of scheduled work. A scheduled firing passes a
// background context that is never canceled, including when Stop's grace
// period runs out; RunNow passes the caller's context.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler wraps robfig/cron with structured logging per run and an
// idempotent start/stop lifecycle, generalizing the teacher's single-job
// cron wrapper to the multi-job lineup spec §4.12 requires.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu      sync.Mutex
	running bool
}

// New creates a scheduler with minute resolution (no seconds field),
// matching spec §4.12's "single scheduler with minute resolution".
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// AddJob registers a job against a standard five-field cron expression
// (e.g. "0 9 * * *" for a daily 9am run, "@every 1m" for a one-minute
// poll). Each firing gets its own background context.
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		start := time.Now()
		s.log.Debug().Str("job", job.Name()).Msg("job starting")

		if err := job.Run(context.Background()); err != nil {
			s.log.Error().Err(err).Str("job", job.Name()).Dur("elapsed", time.Since(start)).Msg("job failed")
			return
		}
		s.log.Debug().Str("job", job.Name()).Dur("elapsed", time.Since(start)).Msg("job completed")
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("schedule", schedule).Str("job", job.Name()).Msg("job registered")
	return nil
}

// Start begins running registered jobs on their schedules. Calling Start
// on an already-running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop halts future firings and waits for any in-flight jobs to finish,
// up to grace. Calling Stop when not running is a no-op.
func (s *Scheduler) Stop(grace time.Duration) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	drained := s.cron.Stop()
	select {
	case <-drained.Done():
		s.log.Info().Msg("scheduler stopped, all jobs drained")
	case <-time.After(grace):
		s.log.Warn().Dur("grace", grace).Msg("scheduler stop grace period exceeded, jobs may still be in flight")
	}
}

// RunNow executes a job immediately, outside its schedule. Used by the
// CLI's one-shot subcommands (news collect, metrics show, learn cycle).
func (s *Scheduler) RunNow(ctx context.Context, job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("running job on demand")
	return job.Run(ctx)
}
