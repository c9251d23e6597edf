// Package scheduler runs the configured maintenance tasks on cron schedules
// using gocron.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"github.com/edgard/threadbox/internal/config"
	"github.com/edgard/threadbox/internal/logger"
	"github.com/edgard/threadbox/internal/tasks"
)

// RunObserver is told about every finished task run.
type RunObserver func(task string, err error)

// Scheduler manages scheduled tasks using the gocron library.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
	cfg       *config.SchedulerConfig
	taskMap   map[string]tasks.ScheduledTaskFunc
	clock     clockwork.Clock
	observer  RunObserver
	mu        sync.Mutex // guards start/stop
	running   bool
	scheduled []string
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock drives the scheduler from clock instead of the wall clock.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Scheduler) { s.clock = clock }
}

// WithObserver registers fn to be called after every task run.
func WithObserver(fn RunObserver) Option {
	return func(s *Scheduler) { s.observer = fn }
}

// NewScheduler creates a new scheduler instance using gocron.
func NewScheduler(log *slog.Logger, cfg *config.SchedulerConfig, taskMap map[string]tasks.ScheduledTaskFunc, opts ...Option) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Scheduler{
		logger:  log.With("component", "scheduler"),
		cfg:     cfg,
		taskMap: taskMap,
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}

	gs, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithClock(s.clock),
		gocron.WithLogger(logger.NewGocronLogger(log)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	s.scheduler = gs
	return s, nil
}

// Start schedules and starts all enabled tasks based on the configuration.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	s.logger.Debug("Configuring scheduler jobs...")

	if s.cfg == nil || len(s.cfg.Tasks) == 0 {
		s.logger.Warn("No scheduler tasks configured.")
		s.scheduler.Start()
		s.running = true
		return nil
	}

	s.scheduled = s.scheduled[:0]
	for taskName, taskConfig := range s.cfg.Tasks {
		if !taskConfig.Enabled {
			s.logger.Info("Skipping disabled task", "task_name", taskName)
			continue
		}

		taskFunc, exists := s.taskMap[taskName]
		if !exists {
			s.logger.Warn("Scheduled task configured but not found in registry, skipping", "task_name", taskName)
			continue
		}

		if taskConfig.Schedule == "" {
			s.logger.Warn("Scheduled task enabled but has empty schedule, skipping", "task_name", taskName)
			continue
		}

		_, err := s.scheduler.NewJob(
			gocron.CronJob(taskConfig.Schedule, hasSeconds(taskConfig.Schedule)),
			gocron.NewTask(s.wrap(taskFunc), taskName),
			gocron.WithName(taskName),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			s.logger.Error("Failed to schedule task", "task_name", taskName, "schedule", taskConfig.Schedule, "error", err)
			continue
		}

		s.logger.Info("Scheduled task", "task_name", taskName, "schedule", taskConfig.Schedule)
		s.scheduled = append(s.scheduled, taskName)
	}

	s.scheduler.Start()
	s.running = true
	s.logger.Info("Scheduler initialized and started", "tasks_scheduled", len(s.scheduled))
	return nil
}

// wrap adds logging and run observation around a task. gocron injects the
// job context as the first argument.
func (s *Scheduler) wrap(taskFunc tasks.ScheduledTaskFunc) func(ctx context.Context, name string) {
	return func(ctx context.Context, name string) {
		s.logger.InfoContext(ctx, "Running scheduled task", "task_name", name)
		start := s.clock.Now()

		taskErr := taskFunc(ctx)
		if taskErr != nil {
			s.logger.ErrorContext(ctx, "Scheduled task failed", "task_name", name, "error", taskErr)
		}
		if s.observer != nil {
			s.observer(name, taskErr)
		}
		s.logger.InfoContext(ctx, "Finished scheduled task", "task_name", name, "duration", s.clock.Since(start))
	}
}

// Scheduled returns the names of the tasks registered by the last Start, sorted.
func (s *Scheduler) Scheduled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Clone(s.scheduled)
	slices.Sort(out)
	return out
}

// Stop gracefully stops the scheduler, waiting for running jobs to complete.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		s.logger.Info("Scheduler is not running, nothing to stop.")
		return nil
	}

	s.logger.Debug("Stopping scheduler gracefully (waiting for jobs)...")
	err := s.scheduler.Shutdown()
	if err != nil {
		s.logger.Error("Error during scheduler shutdown", "error", err)
	} else {
		s.logger.Info("Scheduler stopped gracefully.")
	}

	s.running = false
	return err
}

// hasSeconds reports whether a cron expression carries a leading seconds field.
func hasSeconds(schedule string) bool {
	return len(strings.Fields(schedule)) == 6
}
