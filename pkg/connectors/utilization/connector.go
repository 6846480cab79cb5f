// Package utilization collects VM CPU and memory metrics from Azure
// Monitor over a 14-day window and summarizes them for right-sizing.
package utilization

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/clover/pkg/connectors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	apiVersion = "2023-10-01"

	// LookbackDays is the metric window used for right-sizing analysis.
	LookbackDays = 14

	// aggregation interval of one hour
	interval = "PT1H"

	metricCPU    = "Percentage CPU"
	metricMemory = "Available Memory Bytes"

	// maxConcurrentVMs bounds parallel Monitor queries per subscription.
	maxConcurrentVMs = 8
)

// Right-sizing thresholds. A VM is underutilized when its average CPU sits
// below the CPU threshold while average available memory stays above the
// memory threshold.
const (
	lowCPUThresholdPct   = 10.0
	lowMemoryThresholdGB = 2.0
)

type apiClient interface {
	GetJSON(ctx context.Context, azureTenantID, url string, dest any) error
}

// Connector queries Azure Monitor for per-VM utilization metrics. VMs are
// processed concurrently and one VM failing does not discard the others.
type Connector struct {
	client apiClient
	logger ectologger.Logger

	// now is replaceable in tests
	now func() time.Time
}

// NewConnector creates a utilization connector.
func NewConnector(client apiClient, logger ectologger.Logger) *Connector {
	return &Connector{client: client, logger: logger, now: time.Now}
}

func (c *Connector) Name() string {
	return connectors.NameUtilization
}

type metricsResponse struct {
	Value []metricResult `json:"value"`
}

type metricResult struct {
	Name       metricName   `json:"name"`
	Unit       string       `json:"unit"`
	Timeseries []timeseries `json:"timeseries"`
}

type metricName struct {
	Value string `json:"value"`
}

type timeseries struct {
	Data []dataPoint `json:"data"`
}

type dataPoint struct {
	Average *float64 `json:"average"`
}

// Collect fetches metrics for the VM resource IDs carried on the scope by
// the inventory connector. Subscriptions with no VMs return an empty
// collection.
func (c *Connector) Collect(ctx context.Context, scope connectors.Scope) (*connectors.Collection, error) {
	ctx, span := tracing.StartSpan(ctx, "utilization.Connector.Collect")
	defer span.End()

	if len(scope.VMResourceIDs) == 0 {
		c.logger.WithContext(ctx).
			WithField("subscription_id", scope.SubscriptionID).
			WithField("tenant_id", scope.TenantID).
			Debug("no virtual machines to sample")
		return &connectors.Collection{Raw: []any{}}, nil
	}

	var (
		mu      sync.Mutex
		records []models.Record
		raw     []any
		partial []connectors.PartialFailure
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrentVMs)

	for _, resourceID := range scope.VMResourceIDs {
		resourceID := resourceID
		group.Go(func() error {
			resp, err := c.fetchVMMetrics(groupCtx, scope, resourceID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				c.logger.WithContext(ctx).WithError(err).
					WithField("resource_id", resourceID).
					WithField("tenant_id", scope.TenantID).
					Warn("failed to collect vm metrics")
				partial = append(partial, connectors.PartialFailure{Scope: resourceID, Error: err.Error()})
				return nil
			}

			raw = append(raw, map[string]any{"resource_id": resourceID, "metrics": resp.Value})
			records = append(records, summarize(resourceID, resp, scope)...)
			return nil
		})
	}
	group.Wait()

	c.logger.WithContext(ctx).
		WithField("vms_processed", len(scope.VMResourceIDs)).
		WithField("metric_records", len(records)).
		WithField("subscription_id", scope.SubscriptionID).
		WithField("tenant_id", scope.TenantID).
		Info("collected vm utilization metrics")

	return &connectors.Collection{
		Raw:      raw,
		RawCount: len(raw),
		Records:  records,
		Partial:  partial,
	}, nil
}

func (c *Connector) fetchVMMetrics(ctx context.Context, scope connectors.Scope, resourceID string) (*metricsResponse, error) {
	end := c.now().UTC()
	start := end.AddDate(0, 0, -LookbackDays)

	query := url.Values{}
	query.Set("api-version", apiVersion)
	query.Set("metricnames", metricCPU+","+metricMemory)
	query.Set("aggregation", "Average,Maximum,Minimum")
	query.Set("interval", interval)
	query.Set("timespan", start.Format(time.RFC3339)+"/"+end.Format(time.RFC3339))

	target := fmt.Sprintf("https://management.azure.com%s/providers/microsoft.insights/metrics?%s", resourceID, query.Encode())

	var resp metricsResponse
	if err := c.client.GetJSON(ctx, scope.AzureTenantID, target, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// summarize reduces the raw timeseries for one VM into per-metric summary
// rows and stamps the VM-level underutilized flag on each of them.
func summarize(resourceID string, resp *metricsResponse, scope connectors.Scope) []models.Record {
	type stats struct {
		avg, max, min, p95 float64
		samples            int
		unit               string
	}

	byMetric := map[string]stats{}
	var order []string

	for _, metric := range resp.Value {
		name := metric.Name.Value
		if len(metric.Timeseries) == 0 {
			continue
		}

		var values []float64
		for _, series := range metric.Timeseries {
			for _, point := range series.Data {
				if point.Average != nil {
					values = append(values, *point.Average)
				}
			}
		}
		if len(values) == 0 {
			continue
		}

		sort.Float64s(values)
		n := len(values)
		p95Index := int(float64(n)*0.95) - 1
		if p95Index < 0 {
			p95Index = 0
		}

		sum := 0.0
		for _, v := range values {
			sum += v
		}

		byMetric[name] = stats{
			avg:     round2(sum / float64(n)),
			max:     round2(values[n-1]),
			min:     round2(values[0]),
			p95:     round2(values[p95Index]),
			samples: n,
			unit:    metric.Unit,
		}
		order = append(order, name)
	}

	underutilized := false
	if cpu, hasCPU := byMetric[metricCPU]; hasCPU {
		if mem, hasMem := byMetric[metricMemory]; hasMem {
			memAvailableGB := mem.avg / (1 << 30)
			underutilized = cpu.avg < lowCPUThresholdPct && memAvailableGB > lowMemoryThresholdGB
		}
	}

	records := make([]models.Record, 0, len(order))
	for _, name := range order {
		s := byMetric[name]
		records = append(records, models.MetricSummary{
			TenantID:       scope.TenantID,
			SubscriptionID: scope.SubscriptionID,
			ResourceID:     resourceID,
			MetricName:     name,
			AvgValue:       s.avg,
			MaxValue:       s.max,
			MinValue:       s.min,
			P95Value:       s.p95,
			SampleCount:    s.samples,
			LookbackDays:   LookbackDays,
			Unit:           s.unit,
			Underutilized:  underutilized,
		})
	}
	return records
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
