// Package scheduler triggers recurring ingestion runs: a daily full pass
// across every connector and an hourly cost-only refresh. A distributed lock
// keeps replicas from triggering the same cycle twice.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/connectors"
	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/orchestrator"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// ErrSchedulerAlreadyRunning is returned when Start is called twice.
var ErrSchedulerAlreadyRunning = errors.New("scheduler already running")

const (
	// DefaultFullInterval is the default interval for full ingestion runs
	DefaultFullInterval = 24 * time.Hour

	// DefaultIncrementalCostInterval is the default interval for cost-only runs
	DefaultIncrementalCostInterval = time.Hour

	// DefaultLockTTL bounds how long a cycle lock is held. Must exceed the
	// time it takes siblings to attempt the same cycle, not the run itself;
	// the run continues after the lock expires.
	DefaultLockTTL = 5 * time.Minute

	jobFull            = "full"
	jobIncrementalCost = "incremental_cost"

	triggeredBy = "scheduler"
)

type ingestionTrigger interface {
	StartRun(ctx context.Context, req orchestrator.TriggerRequest) (*models.IngestionRun, error)
	ExecuteRun(ctx context.Context, run *models.IngestionRun)
}

type cycleLocker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}

// Config holds scheduler tuning knobs.
type Config struct {
	FullIngestionInterval   time.Duration
	IncrementalCostInterval time.Duration
	LockTTL                 time.Duration
}

// Scheduler drives the recurring ingestion jobs.
type Scheduler struct {
	trigger ingestionTrigger
	locker  cycleLocker
	config  Config
	logger  ectologger.Logger

	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.Mutex
}

// NewScheduler creates a scheduler.
func NewScheduler(trigger ingestionTrigger, locker cycleLocker, config Config, logger ectologger.Logger) *Scheduler {
	if config.FullIngestionInterval <= 0 {
		config.FullIngestionInterval = DefaultFullInterval
	}
	if config.IncrementalCostInterval <= 0 {
		config.IncrementalCostInterval = DefaultIncrementalCostInterval
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultLockTTL
	}

	return &Scheduler{
		trigger:  trigger,
		locker:   locker,
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
		stoppedC: make(chan struct{}),
	}
}

// Start launches the job loop. The full pass runs immediately on startup so
// a fresh deployment does not wait a day for its first snapshot.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	s.logger.WithContext(ctx).Infof("Starting scheduler: full_interval=%s incremental_cost_interval=%s",
		s.config.FullIngestionInterval, s.config.IncrementalCostInterval)

	go s.loop(ctx)

	return nil
}

// Stop stops the scheduler and waits for the loop to drain.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)

	select {
	case <-s.stoppedC:
		s.logger.WithContext(ctx).Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Scheduler shutdown timed out")
		return ctx.Err()
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.stoppedC)

	fullTicker := time.NewTicker(s.config.FullIngestionInterval)
	defer fullTicker.Stop()
	costTicker := time.NewTicker(s.config.IncrementalCostInterval)
	defer costTicker.Stop()

	s.runCycle(ctx, jobFull, nil)

	for {
		select {
		case <-s.stopCh:
			return
		case <-fullTicker.C:
			s.runCycle(ctx, jobFull, nil)
		case <-costTicker.C:
			s.runCycle(ctx, jobIncrementalCost, []string{connectors.NameCost})
		}
	}
}

// runCycle triggers one scheduled run. Nil connectorNames means every
// connector. A sibling replica holding the lock is a skip, not a failure.
func (s *Scheduler) runCycle(ctx context.Context, job string, connectorNames []string) {
	ctx, span := tracing.StartSpan(ctx, "scheduler.Scheduler.runCycle")
	defer span.End()

	ctx = appctx.SetRequestID(ctx, orchestrator.NewCorrelationID())

	err := s.locker.WithLock(ctx, "scheduler:"+job, s.config.LockTTL, func() error {
		run, err := s.trigger.StartRun(ctx, orchestrator.TriggerRequest{
			TriggeredBy: triggeredBy,
			Connectors:  connectorNames,
		})
		if err != nil {
			return err
		}

		s.logger.WithContext(ctx).
			WithField("job", job).
			WithField("run_id", run.ID).
			Info("scheduled ingestion run starting")

		s.trigger.ExecuteRun(ctx, run)
		return nil
	})

	switch {
	case err == nil:
		metrics.SchedulerCyclesTotal.WithLabelValues(job, "success").Inc()
	case errors.Is(err, redis.ErrLockNotAcquired):
		metrics.SchedulerCyclesTotal.WithLabelValues(job, "skipped").Inc()
		s.logger.WithContext(ctx).WithField("job", job).Debug("cycle already claimed by another replica")
	default:
		metrics.SchedulerCyclesTotal.WithLabelValues(job, "error").Inc()
		s.logger.WithContext(ctx).WithError(err).WithField("job", job).Error("scheduled ingestion cycle failed")
	}
}
