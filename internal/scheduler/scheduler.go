// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jamcalli/Pulsarr-sub009/internal/errs"
	"github.com/jamcalli/Pulsarr-sub009/internal/logging"
	"github.com/jamcalli/Pulsarr-sub009/internal/models"
)

// JobFunc is the body of one scheduled job. The context is canceled on
// shutdown; long jobs must honor it.
type JobFunc func(ctx context.Context) error

// Store is the persistence the scheduler needs for job definitions and
// run bookkeeping.
type Store interface {
	UpsertScheduledJob(ctx context.Context, job *models.ScheduledJob) error
	ListScheduledJobs(ctx context.Context) ([]models.ScheduledJob, error)
	GetScheduledJobByName(ctx context.Context, name string) (*models.ScheduledJob, error)
	SetJobEnabled(ctx context.Context, name string, enabled bool) error
	SetJobRunState(ctx context.Context, name string, last, next models.RunInfo) error
}

// Config bounds job execution and shutdown behavior.
type Config struct {
	// JobTimeout bounds a single run; zero means no per-run timeout.
	JobTimeout time.Duration

	// ShutdownGrace is how long Serve waits for in-flight runs after its
	// context is canceled.
	ShutdownGrace time.Duration
}

// managedJob pairs one persisted definition with its registered body and
// the planner's next fire time.
type managedJob struct {
	def  models.ScheduledJob
	fn   JobFunc
	cron *CronExpression
	next time.Time
}

// Scheduler owns the persisted jobs: it plans fire times, enforces the
// one-in-flight-per-name overlap guard, and records every run's outcome.
// It implements suture.Service via Serve.
type Scheduler struct {
	store  Store
	config Config

	mu       sync.Mutex
	jobs     map[string]*managedJob
	inFlight map[string]struct{}

	wake     chan struct{}
	inflight sync.WaitGroup
}

// New constructs a Scheduler. Jobs are registered before Serve starts.
func New(store Store, cfg Config) *Scheduler {
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	return &Scheduler{
		store:    store,
		config:   cfg,
		jobs:     make(map[string]*managedJob),
		inFlight: make(map[string]struct{}),
		wake:     make(chan struct{}, 1),
	}
}

// Register persists def (upsert by unique name) and binds fn as its body.
// Registering two different jobs under one name is rejected; re-registering
// the same name replaces the body and refreshes the definition.
func (s *Scheduler) Register(ctx context.Context, def models.ScheduledJob, fn JobFunc) error {
	if err := validateJobConfig(&def); err != nil {
		return err
	}

	var cron *CronExpression
	if def.Type == models.JobTypeCron {
		var err error
		cron, err = ParseCron(def.Cron.Expression)
		if err != nil {
			return err
		}
	}

	if err := s.store.UpsertScheduledJob(ctx, &def); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	job := &managedJob{def: def, fn: fn, cron: cron}
	job.next = s.planLocked(job, time.Now())
	s.jobs[def.Name] = job
	s.kick()
	return nil
}

// validateJobConfig enforces the boundary rules: a cron job needs a
// non-empty expression, an interval job at least one positive unit.
func validateJobConfig(def *models.ScheduledJob) error {
	switch def.Type {
	case models.JobTypeCron:
		if def.Cron == nil || def.Cron.Expression == "" {
			return errs.ErrInvalidCron
		}
	case models.JobTypeInterval:
		if def.Interval == nil || intervalDuration(def.Interval) <= 0 {
			return errs.ErrInvalidInterval
		}
	default:
		return fmt.Errorf("scheduler: unknown job type %q", def.Type)
	}
	return nil
}

func intervalDuration(cfg *models.IntervalConfig) time.Duration {
	return time.Duration(cfg.Days)*24*time.Hour +
		time.Duration(cfg.Hours)*time.Hour +
		time.Duration(cfg.Minutes)*time.Minute +
		time.Duration(cfg.Seconds)*time.Second
}

// planLocked computes a job's first fire time from its definition and run
// history. Interval jobs tick on a fixed cadence from their anchor;
// cron jobs follow the expression.
func (s *Scheduler) planLocked(job *managedJob, now time.Time) time.Time {
	if !job.def.Enabled {
		return time.Time{}
	}
	switch job.def.Type {
	case models.JobTypeInterval:
		d := intervalDuration(job.def.Interval)
		if job.def.LastRun.Time == nil {
			if job.def.Interval.RunImmediately {
				return now
			}
			return now.Add(d)
		}
		next := job.def.LastRun.Time.Add(d)
		for !next.After(now) {
			next = next.Add(d)
		}
		return next
	case models.JobTypeCron:
		return job.cron.NextRun(now, time.UTC)
	}
	return time.Time{}
}

// Enable turns a job on, persists the flag, and re-plans.
func (s *Scheduler) Enable(ctx context.Context, name string) error {
	return s.setEnabled(ctx, name, true)
}

// Disable turns a job off, persists the flag, and cancels its planning.
// An in-flight run completes normally.
func (s *Scheduler) Disable(ctx context.Context, name string) error {
	return s.setEnabled(ctx, name, false)
}

func (s *Scheduler) setEnabled(ctx context.Context, name string, enabled bool) error {
	if err := s.store.SetJobEnabled(ctx, name, enabled); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[name]
	if !ok {
		return errs.ErrNotFound
	}
	job.def.Enabled = enabled
	job.next = s.planLocked(job, time.Now())
	s.persistNextLocked(ctx, job)
	s.kick()
	return nil
}

// UpdateInterval replaces an interval job's cadence, persists, re-plans.
func (s *Scheduler) UpdateInterval(ctx context.Context, name string, cfg models.IntervalConfig) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return errs.ErrNotFound
	}

	def := job.def
	def.Type = models.JobTypeInterval
	def.Interval = &cfg
	def.Cron = nil
	if err := validateJobConfig(&def); err != nil {
		return err
	}
	if err := s.store.UpsertScheduledJob(ctx, &def); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	job.def = def
	job.cron = nil
	job.next = s.planLocked(job, time.Now())
	s.persistNextLocked(ctx, job)
	s.kick()
	return nil
}

// UpdateCron replaces a cron job's expression, persists, re-plans.
func (s *Scheduler) UpdateCron(ctx context.Context, name, expression string) error {
	cron, err := ParseCron(expression)
	if err != nil {
		return err
	}

	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return errs.ErrNotFound
	}

	def := job.def
	def.Type = models.JobTypeCron
	def.Cron = &models.CronConfig{Expression: expression}
	def.Interval = nil
	if err := s.store.UpsertScheduledJob(ctx, &def); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	job.def = def
	job.cron = cron
	job.next = s.planLocked(job, time.Now())
	s.persistNextLocked(ctx, job)
	s.kick()
	return nil
}

// RunNow triggers a job immediately, bypassing the next-run estimate. A
// request that arrives while a run is in flight merges with it: no second
// invocation is queued and no error is returned.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return errs.ErrNotFound
	}
	if _, running := s.inFlight[name]; running {
		s.mu.Unlock()
		logging.Debug().Str("component", "scheduler").Str("job", name).Msg("run-now merged with in-flight run")
		return nil
	}
	s.inFlight[name] = struct{}{}
	s.mu.Unlock()

	s.launch(ctx, job, time.Now())
	return nil
}

// Jobs returns the current definitions with planner state, for the API.
func (s *Scheduler) Jobs(ctx context.Context) ([]models.ScheduledJob, error) {
	return s.store.ListScheduledJobs(ctx)
}

// Serve is the scheduler's main loop: sleep until the soonest planned
// fire time, launch due jobs, re-plan. It returns when ctx is canceled,
// after waiting up to ShutdownGrace for in-flight runs.
func (s *Scheduler) Serve(ctx context.Context) error {
	logging.Info().Str("component", "scheduler").Msg("scheduler started")

	for {
		timer := time.NewTimer(s.sleepUntilNext())
		select {
		case <-ctx.Done():
			timer.Stop()
			return s.shutdown()
		case <-s.wake:
			timer.Stop()
			continue
		case <-timer.C:
		}

		now := time.Now()
		for _, job := range s.dueJobs(now) {
			s.launch(ctx, job, now)
		}
	}
}

// sleepUntilNext returns how long to sleep before the soonest fire time,
// capped so config changes through other paths are picked up eventually.
func (s *Scheduler) sleepUntilNext() time.Duration {
	const idle = time.Minute

	s.mu.Lock()
	defer s.mu.Unlock()
	soonest := time.Duration(-1)
	now := time.Now()
	for _, job := range s.jobs {
		if job.next.IsZero() {
			continue
		}
		d := job.next.Sub(now)
		if d < 0 {
			d = 0
		}
		if soonest < 0 || d < soonest {
			soonest = d
		}
	}
	if soonest < 0 || soonest > idle {
		return idle
	}
	return soonest
}

// dueJobs collects jobs whose fire time has arrived, claims the overlap
// guard for each, and advances their plan. A job still in flight keeps
// its plan advanced but is not launched (the missed tick is dropped).
func (s *Scheduler) dueJobs(now time.Time) []*managedJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*managedJob
	for name, job := range s.jobs {
		if job.next.IsZero() || job.next.After(now) {
			continue
		}
		job.next = s.advanceLocked(job, now)
		if _, running := s.inFlight[name]; running {
			logging.Warn().Str("component", "scheduler").Str("job", name).Msg("tick dropped: previous run still in flight")
			continue
		}
		s.inFlight[name] = struct{}{}
		due = append(due, job)
	}
	return due
}

// advanceLocked computes the fire time after a tick at now.
func (s *Scheduler) advanceLocked(job *managedJob, now time.Time) time.Time {
	switch job.def.Type {
	case models.JobTypeInterval:
		d := intervalDuration(job.def.Interval)
		next := job.next
		if next.IsZero() {
			next = now
		}
		for !next.After(now) {
			next = next.Add(d)
		}
		return next
	case models.JobTypeCron:
		return job.cron.NextRun(now, time.UTC)
	}
	return time.Time{}
}

// launch runs one job in its own goroutine. The overlap guard for its
// name must already be held; launch releases it at completion and records
// the outcome atomically.
func (s *Scheduler) launch(ctx context.Context, job *managedJob, startedAt time.Time) {
	name := job.def.Name
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		runCtx := ctx
		var cancel context.CancelFunc
		if s.config.JobTimeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, s.config.JobTimeout)
			defer cancel()
		}

		err := job.fn(runCtx)

		last := models.RunInfo{Time: &startedAt, Status: models.RunCompleted}
		if err != nil {
			msg := err.Error()
			last.Status = models.RunFailed
			last.Error = &msg
			logging.Error().Err(err).Str("component", "scheduler").Str("job", name).Msg("job failed")
		} else {
			logging.Debug().Str("component", "scheduler").Str("job", name).Msg("job completed")
		}

		s.mu.Lock()
		delete(s.inFlight, name)
		job.def.LastRun = last
		next := models.RunInfo{Estimated: true}
		if !job.next.IsZero() {
			t := job.next
			next.Time = &t
		}
		job.def.NextRun = next
		s.mu.Unlock()

		// Bookkeeping failures must not fail the job itself.
		if err := s.store.SetJobRunState(context.WithoutCancel(ctx), name, last, next); err != nil &&
			!errors.Is(err, context.Canceled) {
			logging.Warn().Err(err).Str("component", "scheduler").Str("job", name).Msg("failed to persist run state")
		}
	}()
}

// persistNextLocked writes the re-planned next run; callers hold s.mu.
func (s *Scheduler) persistNextLocked(ctx context.Context, job *managedJob) {
	next := models.RunInfo{Estimated: true}
	if !job.next.IsZero() {
		t := job.next
		next.Time = &t
	}
	job.def.NextRun = next
	if err := s.store.SetJobRunState(ctx, job.def.Name, job.def.LastRun, next); err != nil {
		logging.Warn().Err(err).Str("component", "scheduler").Str("job", job.def.Name).Msg("failed to persist next run")
	}
}

// kick wakes the Serve loop to re-evaluate sleep; callers hold s.mu or
// run before Serve starts.
func (s *Scheduler) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// shutdown waits for in-flight runs up to the grace period.
func (s *Scheduler) shutdown() error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		logging.Info().Str("component", "scheduler").Msg("scheduler stopped cleanly")
	case <-time.After(s.config.ShutdownGrace):
		logging.Warn().Str("component", "scheduler").Msg("shutdown grace elapsed with jobs still in flight")
	}
	return nil
}
