package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/connectors"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/rawstore"
)

type fakeTenantStore struct {
	tenants       []models.Tenant
	subscriptions map[string][]models.Subscription
	listErr       error
}

func (f *fakeTenantStore) ListActiveTenants(ctx context.Context) ([]models.Tenant, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.tenants, nil
}

func (f *fakeTenantStore) ListActiveSubscriptions(ctx context.Context, tenantID string) ([]models.Subscription, error) {
	return f.subscriptions[tenantID], nil
}

type fakeRunStore struct {
	mu        sync.Mutex
	created   *models.IngestionRun
	running   []string
	completed map[string][]models.TenantIngestionResult
	failed    map[string]error
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{
		completed: map[string][]models.TenantIngestionResult{},
		failed:    map[string]error{},
	}
}

func (f *fakeRunStore) Create(ctx context.Context, run models.IngestionRun) (*models.IngestionRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run.ID = "run-1"
	run.Status = models.RunStatusPending
	f.created = &run
	return &run, nil
}

func (f *fakeRunStore) MarkRunning(ctx context.Context, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = append(f.running, runID)
	return nil
}

func (f *fakeRunStore) Complete(ctx context.Context, runID string, result []models.TenantIngestionResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed[runID] = result
	return nil
}

func (f *fakeRunStore) Fail(ctx context.Context, runID string, runErr error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[runID] = runErr
	return nil
}

// fakeConnector records call order per subscription and returns canned
// collections.
type fakeConnector struct {
	name    string
	mu      *sync.Mutex
	calls   *[]string
	failFor map[string]error
	records []models.Record
	scopes  map[string]connectors.Scope
}

func (f *fakeConnector) Name() string { return f.name }

func (f *fakeConnector) Collect(ctx context.Context, scope connectors.Scope) (*connectors.Collection, error) {
	f.mu.Lock()
	*f.calls = append(*f.calls, fmt.Sprintf("%s:%s", scope.SubscriptionID, f.name))
	if f.scopes != nil {
		f.scopes[scope.SubscriptionID] = scope
	}
	f.mu.Unlock()

	if err, ok := f.failFor[scope.SubscriptionID]; ok {
		return nil, err
	}
	return &connectors.Collection{
		Raw:      f.records,
		RawCount: len(f.records),
		Records:  f.records,
	}, nil
}

type fakeRawWriter struct {
	mu     sync.Mutex
	writes []rawstore.Envelope
	err    error
}

func (f *fakeRawWriter) Write(ctx context.Context, envelope rawstore.Envelope) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.writes = append(f.writes, envelope)
	return rawstore.ObjectPath(envelope), nil
}

func (f *fakeRawWriter) Backend() string { return "fake" }

type fakeCuratedWriter struct {
	mu     sync.Mutex
	writes []string
	err    error
}

func (f *fakeCuratedWriter) Write(ctx context.Context, connector string, records []models.Record) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.writes = append(f.writes, connector)
	counts := map[string]int{}
	for _, record := range records {
		counts[record.RecordKind()]++
	}
	return counts, nil
}

func testTenant() models.Tenant {
	return models.Tenant{ID: "tenant-a", Name: "Tenant A", AzureTenantID: "aad-a", IsActive: true}
}

func newTestOrchestrator(tenants *fakeTenantStore, runs *fakeRunStore, conns []connectors.Connector, raw rawstore.Writer, curated curatedWriter) *Orchestrator {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return New(Config{}, tenants, runs, conns, raw, curated, nil, logger)
}

func allConnectorsRun() *models.IngestionRun {
	return &models.IngestionRun{
		ID:         "run-1",
		Status:     models.RunStatusPending,
		Connectors: database.NewJSONB(append([]string(nil), connectorOrder...)),
	}
}

func TestExecuteRun_ConnectorOrderAndVMHandoff(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	scopes := map[string]connectors.Scope{}

	vm := models.Resource{
		ResourceID: "/subscriptions/sub-1/vm-1",
		Type:       "microsoft.compute/virtualmachines",
	}
	storage := models.Resource{ResourceID: "/subscriptions/sub-1/st-1", Type: "microsoft.storage/storageaccounts"}

	conns := []connectors.Connector{
		&fakeConnector{name: connectors.NameInventory, mu: &mu, calls: &calls, records: []models.Record{vm, storage}},
		&fakeConnector{name: connectors.NameCost, mu: &mu, calls: &calls},
		&fakeConnector{name: connectors.NameAdvisory, mu: &mu, calls: &calls},
		&fakeConnector{name: connectors.NameUtilization, mu: &mu, calls: &calls, scopes: scopes},
	}

	tenants := &fakeTenantStore{
		tenants:       []models.Tenant{testTenant()},
		subscriptions: map[string][]models.Subscription{"tenant-a": {{ID: "s1", TenantID: "tenant-a", SubscriptionID: "sub-1"}}},
	}
	runs := newFakeRunStore()
	raw := &fakeRawWriter{}
	curated := &fakeCuratedWriter{}

	o := newTestOrchestrator(tenants, runs, conns, raw, curated)
	o.ExecuteRun(context.Background(), allConnectorsRun())

	assert.Equal(t, []string{
		"sub-1:inventory",
		"sub-1:cost",
		"sub-1:advisory",
		"sub-1:utilization",
	}, calls)

	// Inventory discovered VMs feed the utilization connector
	assert.Equal(t, []string{"/subscriptions/sub-1/vm-1"}, scopes["sub-1"].VMResourceIDs)

	require.Contains(t, runs.completed, "run-1")
	result := runs.completed["run-1"]
	require.Len(t, result, 1)
	assert.Equal(t, 1, result[0].SubscriptionsProcessed)
	assert.Equal(t, 0, result[0].SubscriptionsFailed)
	assert.Equal(t, 2, result[0].TotalRecords)
}

func TestExecuteRun_SubscriptionFailureIsIsolated(t *testing.T) {
	var mu sync.Mutex
	var calls []string

	conns := []connectors.Connector{
		&fakeConnector{name: connectors.NameInventory, mu: &mu, calls: &calls, failFor: map[string]error{"sub-bad": errors.New("forbidden")}},
		&fakeConnector{name: connectors.NameCost, mu: &mu, calls: &calls},
		&fakeConnector{name: connectors.NameAdvisory, mu: &mu, calls: &calls},
		&fakeConnector{name: connectors.NameUtilization, mu: &mu, calls: &calls},
	}

	tenants := &fakeTenantStore{
		tenants: []models.Tenant{testTenant()},
		subscriptions: map[string][]models.Subscription{"tenant-a": {
			{ID: "s1", TenantID: "tenant-a", SubscriptionID: "sub-good"},
			{ID: "s2", TenantID: "tenant-a", SubscriptionID: "sub-bad"},
		}},
	}
	runs := newFakeRunStore()

	o := newTestOrchestrator(tenants, runs, conns, &fakeRawWriter{}, &fakeCuratedWriter{})
	o.ExecuteRun(context.Background(), allConnectorsRun())

	require.Contains(t, runs.completed, "run-1")
	result := runs.completed["run-1"]
	require.Len(t, result, 1)
	assert.Equal(t, 1, result[0].SubscriptionsProcessed)
	assert.Equal(t, 1, result[0].SubscriptionsFailed)

	// The failed subscription stopped after inventory; the healthy one ran
	// the full sequence.
	assert.NotContains(t, calls, "sub-bad:cost")
	assert.Contains(t, calls, "sub-good:utilization")

	// A subscription failure leaves the run completed
	assert.Empty(t, runs.failed)
}

func TestExecuteRun_RawSnapshotPrecedesCuratedWrite(t *testing.T) {
	var mu sync.Mutex
	var calls []string

	conns := []connectors.Connector{
		&fakeConnector{name: connectors.NameInventory, mu: &mu, calls: &calls, records: []models.Record{models.Resource{ResourceID: "r-1"}}},
	}

	tenants := &fakeTenantStore{
		tenants:       []models.Tenant{testTenant()},
		subscriptions: map[string][]models.Subscription{"tenant-a": {{ID: "s1", TenantID: "tenant-a", SubscriptionID: "sub-1"}}},
	}
	runs := newFakeRunStore()
	raw := &fakeRawWriter{}
	curated := &fakeCuratedWriter{err: errors.New("db down")}

	run := &models.IngestionRun{
		ID:         "run-1",
		Connectors: database.NewJSONB([]string{connectors.NameInventory}),
	}

	o := newTestOrchestrator(tenants, runs, conns, raw, curated)
	o.ExecuteRun(context.Background(), run)

	// Raw landed even though the curated write failed
	require.Len(t, raw.writes, 1)
	assert.Equal(t, "inventory", raw.writes[0].Connector)
	assert.Equal(t, 1, raw.writes[0].RecordCount)

	result := runs.completed["run-1"]
	require.Len(t, result, 1)
	require.Len(t, result[0].Results, 1)
	assert.False(t, result[0].Results[0].Success())
}

func TestExecuteRun_ExistingSnapshotDoesNotFailSubscription(t *testing.T) {
	var mu sync.Mutex
	var calls []string

	conns := []connectors.Connector{
		&fakeConnector{name: connectors.NameInventory, mu: &mu, calls: &calls},
	}

	tenants := &fakeTenantStore{
		tenants:       []models.Tenant{testTenant()},
		subscriptions: map[string][]models.Subscription{"tenant-a": {{ID: "s1", TenantID: "tenant-a", SubscriptionID: "sub-1"}}},
	}
	runs := newFakeRunStore()
	raw := &fakeRawWriter{err: fmt.Errorf("%w: object occupied", rawstore.ErrSnapshotExists)}

	run := &models.IngestionRun{
		ID:         "run-1",
		Connectors: database.NewJSONB([]string{connectors.NameInventory}),
	}

	o := newTestOrchestrator(tenants, runs, conns, raw, &fakeCuratedWriter{})
	o.ExecuteRun(context.Background(), run)

	result := runs.completed["run-1"]
	require.Len(t, result, 1)
	assert.Equal(t, 1, result[0].SubscriptionsProcessed)
}

func TestExecuteRun_TenantListFailureFailsRun(t *testing.T) {
	tenants := &fakeTenantStore{listErr: errors.New("db unreachable")}
	runs := newFakeRunStore()

	o := newTestOrchestrator(tenants, runs, nil, &fakeRawWriter{}, &fakeCuratedWriter{})
	o.ExecuteRun(context.Background(), allConnectorsRun())

	require.Contains(t, runs.failed, "run-1")
	assert.Empty(t, runs.completed)
}

func TestExecuteRun_TenantScopeFilters(t *testing.T) {
	var mu sync.Mutex
	var calls []string

	conns := []connectors.Connector{
		&fakeConnector{name: connectors.NameInventory, mu: &mu, calls: &calls},
	}

	other := models.Tenant{ID: "tenant-b", AzureTenantID: "aad-b", IsActive: true}
	tenants := &fakeTenantStore{
		tenants: []models.Tenant{testTenant(), other},
		subscriptions: map[string][]models.Subscription{
			"tenant-a": {{ID: "s1", TenantID: "tenant-a", SubscriptionID: "sub-a"}},
			"tenant-b": {{ID: "s2", TenantID: "tenant-b", SubscriptionID: "sub-b"}},
		},
	}
	runs := newFakeRunStore()

	scope := "tenant-b"
	run := &models.IngestionRun{
		ID:          "run-1",
		Connectors:  database.NewJSONB([]string{connectors.NameInventory}),
		TenantScope: &scope,
	}

	o := newTestOrchestrator(tenants, runs, conns, &fakeRawWriter{}, &fakeCuratedWriter{})
	o.ExecuteRun(context.Background(), run)

	assert.Equal(t, []string{"sub-b:inventory"}, calls)
	result := runs.completed["run-1"]
	require.Len(t, result, 1)
	assert.Equal(t, "tenant-b", result[0].TenantID)
}

func TestStartRun_DefaultsToAllConnectors(t *testing.T) {
	runs := newFakeRunStore()
	o := newTestOrchestrator(&fakeTenantStore{}, runs, nil, &fakeRawWriter{}, &fakeCuratedWriter{})

	run, err := o.StartRun(context.Background(), TriggerRequest{TriggeredBy: "api"})

	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPending, run.Status)
	assert.Equal(t, connectorOrder, run.Connectors.Data)
}

func TestStartRun_RejectsUnknownConnector(t *testing.T) {
	runs := newFakeRunStore()
	o := newTestOrchestrator(&fakeTenantStore{}, runs, nil, &fakeRawWriter{}, &fakeCuratedWriter{})

	_, err := o.StartRun(context.Background(), TriggerRequest{Connectors: []string{"billing"}})
	require.Error(t, err)
}

func TestStartRun_PreservesCanonicalOrder(t *testing.T) {
	runs := newFakeRunStore()
	o := newTestOrchestrator(&fakeTenantStore{}, runs, nil, &fakeRawWriter{}, &fakeCuratedWriter{})

	run, err := o.StartRun(context.Background(), TriggerRequest{
		Connectors: []string{connectors.NameUtilization, connectors.NameInventory},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{connectors.NameInventory, connectors.NameUtilization}, run.Connectors.Data)
}
