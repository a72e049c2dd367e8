// Package scheduler runs the cron job loop. It wraps gocron and keeps the
// installed arms in step with the cron_jobs table: a periodic sync loads all
// enabled jobs, removes arms for jobs that disappeared or were disabled, and
// (re)installs arms whose expression or timezone changed.
//
// Each job maps to exactly one gocron arm, tagged with the job UUID. Arms of
// the same job never overlap because the arm callback is awaited; across
// jobs, concurrency is bounded by maxConcurrent — an arm firing while the
// limit is reached is dropped, not queued, and the next fire re-evaluates.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/parabase-io/parabase/internal/config"
	"github.com/parabase-io/parabase/internal/db"
	"github.com/parabase-io/parabase/internal/metrics"
	"github.com/parabase-io/parabase/internal/repositories"
)

// Dispatcher executes one dispatch of a job, attempts and retries included.
// It reports whether any attempt succeeded.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *db.CronJob) bool
}

// armState remembers what an installed arm was built from, so sync can tell
// whether a job definition changed underneath it.
type armState struct {
	cronExpr string
	timezone string
}

// Scheduler keeps gocron arms in step with the cron_jobs table and gates
// dispatch concurrency.
type Scheduler struct {
	cron       gocron.Scheduler
	store      repositories.Store
	dispatcher Dispatcher
	cfg        config.Scheduler
	logger     *zap.Logger
	now        func() time.Time

	mu           sync.Mutex
	arms         map[uuid.UUID]armState
	runningCount int

	stop chan struct{}
	done chan struct{}
}

// New creates a Scheduler. Call Start to begin processing.
func New(store repositories.Store, dispatcher Dispatcher, cfg config.Scheduler, logger *zap.Logger, now func() time.Time) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("scheduler: creating gocron scheduler: %w", err)
	}
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		cron:       s,
		store:      store,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger.Named("scheduler"),
		now:        now,
		arms:       make(map[uuid.UUID]armState),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// Start performs the initial sync, starts gocron and launches the periodic
// sync loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Sync(ctx); err != nil {
		return err
	}
	s.cron.Start()
	go s.syncLoop()
	s.logger.Info("scheduler started",
		zap.Duration("poll_interval", s.cfg.PollInterval()),
		zap.Int("max_concurrent", s.cfg.MaxConcurrentJobs),
	)
	return nil
}

// Stop halts the sync loop and shuts gocron down, waiting for running arm
// callbacks to return.
func (s *Scheduler) Stop() error {
	close(s.stop)
	<-s.done
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("scheduler: shutdown: %w", err)
	}
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) syncLoop() {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := s.Sync(ctx); err != nil {
				s.logger.Error("job sync failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// Sync reconciles installed arms against the enabled jobs in the database.
// Exported so the admin API can force a sync right after a job mutation
// instead of waiting for the next poll.
func (s *Scheduler) Sync(ctx context.Context) error {
	enabled, err := s.store.CronJobs().ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: loading enabled jobs: %w", err)
	}

	wanted := make(map[uuid.UUID]*db.CronJob, len(enabled))
	for i := range enabled {
		wanted[enabled[i].ID] = &enabled[i]
	}

	s.mu.Lock()
	var stale []uuid.UUID
	for id := range s.arms {
		if _, ok := wanted[id]; !ok {
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()

	for _, id := range stale {
		s.removeArm(id)
	}

	for _, job := range enabled {
		job := job
		s.mu.Lock()
		state, installed := s.arms[job.ID]
		unchanged := installed && state.cronExpr == job.CronExpr && state.timezone == job.Timezone
		s.mu.Unlock()
		if unchanged {
			continue
		}
		if installed {
			s.removeArm(job.ID)
		}
		if err := s.installArm(ctx, &job); err != nil {
			s.logger.Error("failed to install job arm",
				zap.String("job_id", job.ID.String()),
				zap.String("job_name", job.Name),
				zap.Error(err),
			)
		}
	}
	return nil
}

// RemoveJob cancels a job's arm. Safe to call while running; called by the
// admin API on job deletion or disable.
func (s *Scheduler) RemoveJob(jobID uuid.UUID) {
	s.removeArm(jobID)
	s.logger.Info("job removed from scheduler", zap.String("job_id", jobID.String()))
}

func (s *Scheduler) removeArm(jobID uuid.UUID) {
	s.cron.RemoveByTags(jobID.String())
	s.mu.Lock()
	delete(s.arms, jobID)
	s.mu.Unlock()
}

// installArm registers the gocron arm for one job and persists its next
// fire time.
func (s *Scheduler) installArm(ctx context.Context, job *db.CronJob) error {
	spec := cronSpec(job)

	_, err := s.cron.NewJob(
		gocron.CronJob(spec, false),
		gocron.NewTask(func(id uuid.UUID) {
			s.fire(id)
		}, job.ID),
		gocron.WithTags(job.ID.String()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("scheduler: installing arm for job %s (spec %q): %w", job.ID, spec, err)
	}

	s.mu.Lock()
	s.arms[job.ID] = armState{cronExpr: job.CronExpr, timezone: job.Timezone}
	s.mu.Unlock()

	if next, err := NextRun(job, s.now()); err == nil {
		if err := s.store.CronJobs().UpdateRunTimes(ctx, job.ID, nil, &next); err != nil {
			s.logger.Warn("failed to persist next run time",
				zap.String("job_id", job.ID.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}

// fire is the arm callback: it gates on the concurrency limit, re-reads the
// job row, and hands it to the dispatcher.
func (s *Scheduler) fire(jobID uuid.UUID) {
	s.mu.Lock()
	if s.runningCount >= s.cfg.MaxConcurrentJobs {
		s.mu.Unlock()
		s.logger.Warn("dispatch skipped, concurrency limit reached",
			zap.String("job_id", jobID.String()),
			zap.Int("max_concurrent", s.cfg.MaxConcurrentJobs),
		)
		metrics.CronDispatchesTotal.WithLabelValues("skipped").Inc()
		return
	}
	s.runningCount++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.runningCount--
		s.mu.Unlock()
	}()

	ctx := context.Background()

	job, err := s.store.CronJobs().GetByID(ctx, jobID)
	if err != nil {
		s.logger.Error("failed to load job at fire time",
			zap.String("job_id", jobID.String()),
			zap.Error(err),
		)
		return
	}
	if !job.Enabled {
		return
	}

	if s.dispatcher.Dispatch(ctx, job) {
		metrics.CronDispatchesTotal.WithLabelValues("succeeded").Inc()
	} else {
		metrics.CronDispatchesTotal.WithLabelValues("failed").Inc()
	}

	// Whether the dispatch succeeded or not, the job ran: refresh both
	// timestamps. A skipped firing never reaches this point.
	lastRunAt := s.now()
	var nextPtr *time.Time
	if next, err := NextRun(job, lastRunAt); err == nil {
		nextPtr = &next
	}
	if err := s.store.CronJobs().UpdateRunTimes(ctx, job.ID, &lastRunAt, nextPtr); err != nil {
		s.logger.Warn("failed to persist run times",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
	}
}

// Running reports how many dispatches are currently in flight.
func (s *Scheduler) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningCount
}

// TriggerNow dispatches a job immediately, bypassing the cron schedule and
// the concurrency gate. Used by the admin API.
func (s *Scheduler) TriggerNow(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.store.CronJobs().GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("scheduler: job not found: %w", err)
	}
	s.logger.Info("manual trigger requested",
		zap.String("job_id", jobID.String()),
		zap.String("job_name", job.Name),
	)
	s.dispatcher.Dispatch(ctx, job)
	lastRunAt := s.now()
	return s.store.CronJobs().UpdateRunTimes(ctx, job.ID, &lastRunAt, nil)
}

// cronSpec renders the job's expression with its timezone in the CRON_TZ
// form understood by both gocron and robfig/cron.
func cronSpec(job *db.CronJob) string {
	tz := job.Timezone
	if tz == "" {
		tz = "UTC"
	}
	return fmt.Sprintf("CRON_TZ=%s %s", tz, job.CronExpr)
}

// NextRun computes the next fire time of a job after from.
func NextRun(job *db.CronJob, from time.Time) (time.Time, error) {
	schedule, err := cron.ParseStandard(cronSpec(job))
	if err != nil {
		return time.Time{}, fmt.Errorf("scheduler: parsing cron expression %q: %w", job.CronExpr, err)
	}
	return schedule.Next(from), nil
}

// ValidateExpr reports whether expr parses as a standard cron expression in
// the given timezone. Used by the admin API before persisting a job.
func ValidateExpr(expr, timezone string) error {
	job := &db.CronJob{CronExpr: expr, Timezone: timezone}
	if _, err := NextRun(job, time.Now()); err != nil {
		return err
	}
	return nil
}
