package utilization

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/connectors"
	"github.com/Ramsey-B/clover/pkg/models"
)

type fakeClient struct {
	mu        sync.Mutex
	responses map[string]metricsResponse
	failFor   map[string]error
	calls     int
}

func (f *fakeClient) GetJSON(ctx context.Context, azureTenantID, target string, dest any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	for marker, err := range f.failFor {
		if strings.Contains(target, marker) {
			return err
		}
	}
	for marker, resp := range f.responses {
		if strings.Contains(target, marker) {
			raw, _ := json.Marshal(resp)
			return json.Unmarshal(raw, dest)
		}
	}
	return nil
}

func metricSeries(name, unit string, averages ...float64) metricResult {
	points := make([]dataPoint, len(averages))
	for i := range averages {
		avg := averages[i]
		points[i] = dataPoint{Average: &avg}
	}
	return metricResult{
		Name:       metricName{Value: name},
		Unit:       unit,
		Timeseries: []timeseries{{Data: points}},
	}
}

func testScope(vmIDs ...string) connectors.Scope {
	return connectors.Scope{
		TenantID:       "tenant-a",
		AzureTenantID:  "aad-tenant",
		SubscriptionID: "sub-1",
		VMResourceIDs:  vmIDs,
	}
}

func newTestConnector(client apiClient) *Connector {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewConnector(client, logger)
}

func TestCollect_NoVMsIsEmpty(t *testing.T) {
	client := &fakeClient{}

	collection, err := newTestConnector(client).Collect(context.Background(), testScope())

	require.NoError(t, err)
	assert.Empty(t, collection.Records)
	assert.Equal(t, 0, client.calls)
}

func TestCollect_SummarizesMetrics(t *testing.T) {
	client := &fakeClient{
		responses: map[string]metricsResponse{
			"vm-1": {Value: []metricResult{
				metricSeries(metricCPU, "Percent", 4, 6, 8, 2),
				metricSeries(metricMemory, "Bytes", 4*float64(1<<30)),
			}},
		},
	}

	collection, err := newTestConnector(client).Collect(context.Background(), testScope("/subscriptions/sub-1/vm-1"))

	require.NoError(t, err)
	require.Len(t, collection.Records, 2)

	cpu := collection.Records[0].(models.MetricSummary)
	assert.Equal(t, metricCPU, cpu.MetricName)
	assert.Equal(t, 5.0, cpu.AvgValue)
	assert.Equal(t, 8.0, cpu.MaxValue)
	assert.Equal(t, 2.0, cpu.MinValue)
	assert.Equal(t, 4, cpu.SampleCount)
	assert.Equal(t, LookbackDays, cpu.LookbackDays)

	// Low CPU with plenty of free memory flags the VM on every metric row
	assert.True(t, cpu.Underutilized)
	mem := collection.Records[1].(models.MetricSummary)
	assert.True(t, mem.Underutilized)
}

func TestCollect_BusyVMIsNotUnderutilized(t *testing.T) {
	client := &fakeClient{
		responses: map[string]metricsResponse{
			"vm-1": {Value: []metricResult{
				metricSeries(metricCPU, "Percent", 45, 60, 80),
				metricSeries(metricMemory, "Bytes", 4*float64(1<<30)),
			}},
		},
	}

	collection, err := newTestConnector(client).Collect(context.Background(), testScope("/vm-1"))

	require.NoError(t, err)
	for _, record := range collection.Records {
		assert.False(t, record.(models.MetricSummary).Underutilized)
	}
}

func TestCollect_MissingMemoryMetricIsNotUnderutilized(t *testing.T) {
	client := &fakeClient{
		responses: map[string]metricsResponse{
			"vm-1": {Value: []metricResult{
				metricSeries(metricCPU, "Percent", 1, 2),
			}},
		},
	}

	collection, err := newTestConnector(client).Collect(context.Background(), testScope("/vm-1"))

	require.NoError(t, err)
	require.Len(t, collection.Records, 1)
	assert.False(t, collection.Records[0].(models.MetricSummary).Underutilized)
}

func TestCollect_VMFailureIsIsolated(t *testing.T) {
	client := &fakeClient{
		responses: map[string]metricsResponse{
			"vm-ok": {Value: []metricResult{metricSeries(metricCPU, "Percent", 50)}},
		},
		failFor: map[string]error{"vm-bad": errors.New("metrics unavailable")},
	}

	collection, err := newTestConnector(client).Collect(context.Background(), testScope("/vm-ok", "/vm-bad"))

	require.NoError(t, err)
	assert.Len(t, collection.Records, 1)
	require.Len(t, collection.Partial, 1)
	assert.Equal(t, "/vm-bad", collection.Partial[0].Scope)
}

func TestSummarize_P95Index(t *testing.T) {
	// 20 samples: p95 index is max(0, int(20*0.95)-1) = 18, the 19th value
	values := make([]float64, 0, 20)
	for i := 1; i <= 20; i++ {
		values = append(values, float64(i))
	}

	resp := &metricsResponse{Value: []metricResult{metricSeries(metricCPU, "Percent", values...)}}
	records := summarize("/vm-1", resp, testScope())

	require.Len(t, records, 1)
	assert.Equal(t, 19.0, records[0].(models.MetricSummary).P95Value)
}
