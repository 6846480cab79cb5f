package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/connectors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/orchestrator"
	"github.com/Ramsey-B/clover/pkg/redis"
)

type fakeTrigger struct {
	mu       sync.Mutex
	started  []orchestrator.TriggerRequest
	executed []string
	startErr error
}

func (f *fakeTrigger) StartRun(ctx context.Context, req orchestrator.TriggerRequest) (*models.IngestionRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started = append(f.started, req)
	return &models.IngestionRun{ID: "run-1", Status: models.RunStatusPending}, nil
}

func (f *fakeTrigger) ExecuteRun(ctx context.Context, run *models.IngestionRun) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, run.ID)
}

func (f *fakeTrigger) startedRequests() []orchestrator.TriggerRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]orchestrator.TriggerRequest(nil), f.started...)
}

func (f *fakeTrigger) executedRuns() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.executed...)
}

type fakeLocker struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (f *fakeLocker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	f.mu.Lock()
	f.keys = append(f.keys, key)
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return fn()
}

func newTestScheduler(trigger *fakeTrigger, locker *fakeLocker) *Scheduler {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewScheduler(trigger, locker, Config{}, logger)
}

func TestRunCycle_FullRunUsesAllConnectors(t *testing.T) {
	trigger := &fakeTrigger{}
	locker := &fakeLocker{}
	s := newTestScheduler(trigger, locker)

	s.runCycle(context.Background(), jobFull, nil)

	started := trigger.startedRequests()
	require.Len(t, started, 1)
	assert.Equal(t, "scheduler", started[0].TriggeredBy)
	assert.Nil(t, started[0].Connectors)
	assert.Equal(t, []string{"run-1"}, trigger.executedRuns())
	assert.Equal(t, []string{"scheduler:full"}, locker.keys)
}

func TestRunCycle_IncrementalRunIsCostOnly(t *testing.T) {
	trigger := &fakeTrigger{}
	locker := &fakeLocker{}
	s := newTestScheduler(trigger, locker)

	s.runCycle(context.Background(), jobIncrementalCost, []string{connectors.NameCost})

	started := trigger.startedRequests()
	require.Len(t, started, 1)
	assert.Equal(t, []string{connectors.NameCost}, started[0].Connectors)
	assert.Equal(t, []string{"scheduler:incremental_cost"}, locker.keys)
}

func TestRunCycle_LockHeldElsewhereSkipsQuietly(t *testing.T) {
	trigger := &fakeTrigger{}
	locker := &fakeLocker{err: redis.ErrLockNotAcquired}
	s := newTestScheduler(trigger, locker)

	s.runCycle(context.Background(), jobFull, nil)

	assert.Empty(t, trigger.startedRequests())
	assert.Empty(t, trigger.executedRuns())
}

func TestRunCycle_StartFailureDoesNotExecute(t *testing.T) {
	trigger := &fakeTrigger{startErr: errors.New("db down")}
	locker := &fakeLocker{}
	s := newTestScheduler(trigger, locker)

	s.runCycle(context.Background(), jobFull, nil)

	assert.Empty(t, trigger.executedRuns())
}

func TestStartStop(t *testing.T) {
	trigger := &fakeTrigger{}
	locker := &fakeLocker{}
	s := newTestScheduler(trigger, locker)

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	// The loop runs a full pass immediately on start
	assert.Eventually(t, func() bool {
		return len(trigger.executedRuns()) >= 1
	}, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	// Stop after stop is a noop
	require.NoError(t, s.Stop(ctx))
}
