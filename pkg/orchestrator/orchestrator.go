// Package orchestrator coordinates the connectors across every active
// tenant and subscription, writing raw snapshots before curated upserts and
// recording the outcome on an ingestion run row.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/Ramsey-B/clover/pkg/connectors"
	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/rawstore"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	// DefaultMaxConcurrentSubscriptions bounds parallel subscription work
	// across the whole run so the provider APIs are not overwhelmed.
	DefaultMaxConcurrentSubscriptions = 10

	// DefaultSubscriptionTimeout bounds one subscription's full connector
	// sequence.
	DefaultSubscriptionTimeout = 15 * time.Minute

	vmResourceType = "microsoft.compute/virtualmachines"
)

// connectorOrder is the fixed execution order within a subscription. The
// inventory connector must run before utilization because it supplies the
// VM list.
var connectorOrder = []string{
	connectors.NameInventory,
	connectors.NameCost,
	connectors.NameAdvisory,
	connectors.NameUtilization,
}

type tenantStore interface {
	ListActiveTenants(ctx context.Context) ([]models.Tenant, error)
	ListActiveSubscriptions(ctx context.Context, tenantID string) ([]models.Subscription, error)
}

type runStore interface {
	Create(ctx context.Context, run models.IngestionRun) (*models.IngestionRun, error)
	MarkRunning(ctx context.Context, runID string) error
	Complete(ctx context.Context, runID string, result []models.TenantIngestionResult) error
	Fail(ctx context.Context, runID string, runErr error) error
}

type curatedWriter interface {
	Write(ctx context.Context, connector string, records []models.Record) (map[string]int, error)
}

type runEventEmitter interface {
	EmitRunCompleted(ctx context.Context, run models.IngestionRun, results []models.TenantIngestionResult) error
}

// Config holds orchestrator tuning knobs.
type Config struct {
	MaxConcurrentSubscriptions int64
	SubscriptionTimeout        time.Duration
}

// TriggerRequest describes a requested ingestion run.
type TriggerRequest struct {
	TriggeredBy string
	Connectors  []string
	TenantScope *string
}

// Orchestrator runs ingestion passes.
type Orchestrator struct {
	tenants    tenantStore
	runs       runStore
	connectors map[string]connectors.Connector
	raw        rawstore.Writer
	curated    curatedWriter
	emitter    runEventEmitter
	logger     ectologger.Logger

	sem                 *semaphore.Weighted
	subscriptionTimeout time.Duration

	// now is replaceable in tests
	now func() time.Time
}

// New creates an orchestrator. emitter may be nil when run events are not
// wired.
func New(
	cfg Config,
	tenants tenantStore,
	runs runStore,
	connectorList []connectors.Connector,
	raw rawstore.Writer,
	curated curatedWriter,
	emitter runEventEmitter,
	logger ectologger.Logger,
) *Orchestrator {
	if cfg.MaxConcurrentSubscriptions <= 0 {
		cfg.MaxConcurrentSubscriptions = DefaultMaxConcurrentSubscriptions
	}
	if cfg.SubscriptionTimeout <= 0 {
		cfg.SubscriptionTimeout = DefaultSubscriptionTimeout
	}

	byName := make(map[string]connectors.Connector, len(connectorList))
	for _, connector := range connectorList {
		byName[connector.Name()] = connector
	}

	return &Orchestrator{
		tenants:             tenants,
		runs:                runs,
		connectors:          byName,
		raw:                 raw,
		curated:             curated,
		emitter:             emitter,
		logger:              logger,
		sem:                 semaphore.NewWeighted(cfg.MaxConcurrentSubscriptions),
		subscriptionTimeout: cfg.SubscriptionTimeout,
		now:                 time.Now,
	}
}

// StartRun validates the trigger and creates a pending run row. The caller
// decides whether ExecuteRun happens inline or in the background.
func (o *Orchestrator) StartRun(ctx context.Context, req TriggerRequest) (*models.IngestionRun, error) {
	ctx, span := tracing.StartSpan(ctx, "orchestrator.Orchestrator.StartRun")
	defer span.End()

	selected, err := o.selectConnectors(req.Connectors)
	if err != nil {
		return nil, err
	}

	run := models.IngestionRun{
		TriggeredBy: req.TriggeredBy,
		Connectors:  database.NewJSONB(selected),
		TenantScope: req.TenantScope,
	}
	return o.runs.Create(ctx, run)
}

// ExecuteRun drives the full ingestion pass for a previously created run.
// The run only fails for orchestrator-level faults; subscription errors are
// captured on the result and leave the run completed.
func (o *Orchestrator) ExecuteRun(ctx context.Context, run *models.IngestionRun) {
	ctx, span := tracing.StartSpan(ctx, "orchestrator.Orchestrator.ExecuteRun")
	defer span.End()

	ctx = appctx.SetRunID(ctx, run.ID)
	start := o.now()

	if err := o.runs.MarkRunning(ctx, run.ID); err != nil {
		o.logger.WithContext(ctx).WithError(err).WithField("run_id", run.ID).Error("failed to mark run running")
		return
	}

	o.logger.WithContext(ctx).
		WithField("run_id", run.ID).
		WithField("triggered_by", run.TriggeredBy).
		WithField("connectors", strings.Join(run.Connectors.Data, ",")).
		Info("ingestion run started")

	tenants, err := o.tenants.ListActiveTenants(ctx)
	if err != nil {
		o.failRun(ctx, run.ID, fmt.Errorf("failed to load tenants: %w", err), start)
		return
	}

	results := make([]models.TenantIngestionResult, 0, len(tenants))
	for _, tenant := range tenants {
		if run.TenantScope != nil && *run.TenantScope != tenant.ID {
			continue
		}
		results = append(results, o.runTenant(ctx, tenant, run.Connectors.Data))
	}

	if err := o.runs.Complete(ctx, run.ID, results); err != nil {
		o.failRun(ctx, run.ID, fmt.Errorf("failed to persist run result: %w", err), start)
		return
	}

	duration := o.now().Sub(start)
	metrics.RecordIngestionRun(string(models.RunStatusCompleted), duration.Seconds())

	o.logger.WithContext(ctx).
		WithField("run_id", run.ID).
		WithField("tenants", len(results)).
		WithField("duration_ms", duration.Milliseconds()).
		Info("ingestion run completed")

	if o.emitter != nil {
		if err := o.emitter.EmitRunCompleted(ctx, *run, results); err != nil {
			o.logger.WithContext(ctx).WithError(err).WithField("run_id", run.ID).Warn("failed to emit run completed event")
		}
	}
}

func (o *Orchestrator) failRun(ctx context.Context, runID string, runErr error, start time.Time) {
	o.logger.WithContext(ctx).WithError(runErr).WithField("run_id", runID).Error("ingestion run failed")
	metrics.RecordIngestionRun(string(models.RunStatusFailed), o.now().Sub(start).Seconds())
	if err := o.runs.Fail(ctx, runID, runErr); err != nil {
		o.logger.WithContext(ctx).WithError(err).WithField("run_id", runID).Error("failed to persist run failure")
	}
}

// runTenant processes every active subscription of a tenant, bounded by the
// run-wide semaphore. A subscription failing never aborts its siblings.
func (o *Orchestrator) runTenant(ctx context.Context, tenant models.Tenant, connectorNames []string) models.TenantIngestionResult {
	ctx, span := tracing.StartSpan(ctx, "orchestrator.Orchestrator.runTenant")
	defer span.End()

	ctx = appctx.SetTenantID(ctx, tenant.ID)
	start := o.now()
	result := models.TenantIngestionResult{TenantID: tenant.ID}

	subscriptions, err := o.tenants.ListActiveSubscriptions(ctx, tenant.ID)
	if err != nil {
		o.logger.WithContext(ctx).WithError(err).WithField("tenant_id", tenant.ID).Error("failed to load subscriptions")
		result.Results = append(result.Results, models.SubscriptionIngestionResult{
			SubscriptionID: "",
			Errors:         []string{fmt.Sprintf("failed to load subscriptions: %v", err)},
		})
		result.SubscriptionsFailed = 1
		return result
	}

	o.logger.WithContext(ctx).
		WithField("tenant_id", tenant.ID).
		WithField("subscription_count", len(subscriptions)).
		Info("tenant ingestion started")

	type indexed struct {
		index  int
		result models.SubscriptionIngestionResult
	}
	resultCh := make(chan indexed, len(subscriptions))

	for i, subscription := range subscriptions {
		i, subscription := i, subscription
		go func() {
			if err := o.sem.Acquire(ctx, 1); err != nil {
				resultCh <- indexed{i, models.SubscriptionIngestionResult{
					SubscriptionID: subscription.SubscriptionID,
					Errors:         []string{err.Error()},
				}}
				return
			}
			defer o.sem.Release(1)
			resultCh <- indexed{i, o.runSubscription(ctx, tenant, subscription, connectorNames)}
		}()
	}

	ordered := make([]models.SubscriptionIngestionResult, len(subscriptions))
	for range subscriptions {
		r := <-resultCh
		ordered[r.index] = r.result
	}

	for _, subResult := range ordered {
		result.Results = append(result.Results, subResult)
		if subResult.Success() {
			result.SubscriptionsProcessed++
			metrics.SubscriptionsProcessed.WithLabelValues(tenant.ID, "success").Inc()
		} else {
			result.SubscriptionsFailed++
			metrics.SubscriptionsProcessed.WithLabelValues(tenant.ID, "failure").Inc()
		}
		for _, count := range subResult.RecordsWritten {
			result.TotalRecords += count
		}
	}

	result.DurationMS = float64(o.now().Sub(start).Milliseconds())

	o.logger.WithContext(ctx).
		WithField("tenant_id", tenant.ID).
		WithField("subscriptions_processed", result.SubscriptionsProcessed).
		WithField("subscriptions_failed", result.SubscriptionsFailed).
		WithField("total_records", result.TotalRecords).
		WithField("duration_ms", result.DurationMS).
		Info("tenant ingestion completed")

	return result
}

// runSubscription runs the selected connectors in their fixed order under
// the subscription's own timeout. The first failing step stops the sequence
// for this subscription; the raw snapshot always lands before the curated
// upsert.
func (o *Orchestrator) runSubscription(ctx context.Context, tenant models.Tenant, subscription models.Subscription, connectorNames []string) models.SubscriptionIngestionResult {
	ctx, cancel := context.WithTimeout(ctx, o.subscriptionTimeout)
	defer cancel()

	ctx, span := tracing.StartSpan(ctx, "orchestrator.Orchestrator.runSubscription")
	defer span.End()

	ctx = appctx.SetSubscriptionID(ctx, subscription.SubscriptionID)

	result := models.SubscriptionIngestionResult{
		SubscriptionID: subscription.SubscriptionID,
		RecordsWritten: map[string]int{},
	}

	scope := connectors.Scope{
		TenantID:       tenant.ID,
		AzureTenantID:  tenant.AzureTenantID,
		SubscriptionID: subscription.SubscriptionID,
	}

	for _, name := range connectorOrder {
		if !ectolinq.Contains(connectorNames, name) {
			continue
		}
		connector, ok := o.connectors[name]
		if !ok {
			continue
		}

		collection, err := connector.Collect(ctx, scope)
		if err != nil {
			o.logger.WithContext(ctx).WithError(err).
				WithField("connector", name).
				WithField("subscription_id", subscription.SubscriptionID).
				WithField("tenant_id", tenant.ID).
				Error("connector failed")
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", name, err))
			break
		}

		for _, partial := range collection.Partial {
			o.logger.WithContext(ctx).
				WithField("connector", name).
				WithField("scope", partial.Scope).
				WithField("error", partial.Error).
				Warn("connector reported partial failure")
		}

		if err := o.writeRaw(ctx, tenant.ID, subscription.SubscriptionID, name, collection); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s raw snapshot: %v", name, err))
			break
		}

		counts, err := o.curated.Write(ctx, name, collection.Records)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s curated write: %v", name, err))
			break
		}
		for kind, count := range counts {
			result.RecordsWritten[kind] += count
		}

		if name == connectors.NameInventory {
			scope.VMResourceIDs = vmResourceIDs(collection.Records)
		}
	}

	return result
}

func (o *Orchestrator) writeRaw(ctx context.Context, tenantID, subscriptionID, connector string, collection *connectors.Collection) error {
	envelope := rawstore.Envelope{
		SnapshotTime:   o.now().UTC(),
		TenantID:       tenantID,
		SubscriptionID: subscriptionID,
		Connector:      connector,
		RecordCount:    collection.RawCount,
		Data:           collection.Raw,
	}

	if _, err := o.raw.Write(ctx, envelope); err != nil {
		// An existing snapshot means this (tenant, connector, day,
		// subscription) already landed; the curated upsert still proceeds.
		if errors.Is(err, rawstore.ErrSnapshotExists) {
			o.logger.WithContext(ctx).
				WithField("connector", connector).
				WithField("subscription_id", subscriptionID).
				Debug("raw snapshot already exists")
			return nil
		}
		return err
	}
	return nil
}

func (o *Orchestrator) selectConnectors(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return append([]string(nil), connectorOrder...), nil
	}

	selected := make([]string, 0, len(requested))
	for _, name := range connectorOrder {
		if ectolinq.Contains(requested, name) {
			selected = append(selected, name)
		}
	}
	for _, name := range requested {
		if !ectolinq.Contains(connectorOrder, name) {
			return nil, fmt.Errorf("unknown connector %q", name)
		}
	}
	if len(selected) == 0 {
		return nil, errors.New("no connectors selected")
	}
	return selected, nil
}

func vmResourceIDs(records []models.Record) []string {
	var ids []string
	for _, record := range records {
		resource, ok := record.(models.Resource)
		if !ok {
			continue
		}
		if strings.HasPrefix(resource.Type, vmResourceType) {
			ids = append(ids, resource.ResourceID)
		}
	}
	return ids
}

// NewCorrelationID returns a fresh correlation id for scheduler-triggered
// runs.
func NewCorrelationID() string {
	return uuid.New().String()
}
