// Package cost ingests daily ActualCost and AmortizedCost figures from the
// Azure Cost Management Query API, grouped by resource group and service.
package cost

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/clover/pkg/connectors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const apiVersion = "2023-11-01"

type apiClient interface {
	PostJSON(ctx context.Context, azureTenantID, url string, body, dest any) error
}

// Connector fetches daily cost data for a subscription. The actual and
// amortized queries run in parallel and merge on (resource group, service,
// usage date).
type Connector struct {
	client apiClient
	logger ectologger.Logger

	// now is replaceable in tests
	now func() time.Time
}

// NewConnector creates a cost connector.
func NewConnector(client apiClient, logger ectologger.Logger) *Connector {
	return &Connector{client: client, logger: logger, now: time.Now}
}

func (c *Connector) Name() string {
	return connectors.NameCost
}

type queryPayload struct {
	Type       string     `json:"type"`
	Timeframe  string     `json:"timeframe"`
	TimePeriod timePeriod `json:"timePeriod"`
	Dataset    dataset    `json:"dataset"`
}

type timePeriod struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type dataset struct {
	Granularity string                 `json:"granularity"`
	Aggregation map[string]aggregation `json:"aggregation"`
	Grouping    []grouping             `json:"grouping"`
}

type aggregation struct {
	Name     string `json:"name"`
	Function string `json:"function"`
}

type grouping struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type queryResponse struct {
	Properties queryProperties `json:"properties"`
}

type queryProperties struct {
	Columns []queryColumn `json:"columns"`
	Rows    [][]any       `json:"rows"`
}

type queryColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func endpoint(subscriptionID string) string {
	return fmt.Sprintf(
		"https://management.azure.com/subscriptions/%s/providers/Microsoft.CostManagement/query?api-version=%s",
		subscriptionID, apiVersion,
	)
}

func buildPayload(costType string, from, to time.Time) queryPayload {
	return queryPayload{
		Type:      costType,
		Timeframe: "Custom",
		TimePeriod: timePeriod{
			From: from.Format("2006-01-02"),
			To:   to.Format("2006-01-02"),
		},
		Dataset: dataset{
			Granularity: "Daily",
			Aggregation: map[string]aggregation{
				"totalCost": {Name: "Cost", Function: "Sum"},
			},
			Grouping: []grouping{
				{Type: "Dimension", Name: "ResourceGroupName"},
				{Type: "Dimension", Name: "ServiceName"},
				{Type: "Dimension", Name: "MeterCategory"},
			},
		},
	}
}

// Collect fetches yesterday's costs for the subscription.
func (c *Connector) Collect(ctx context.Context, scope connectors.Scope) (*connectors.Collection, error) {
	yesterday := c.now().UTC().AddDate(0, 0, -1)
	return c.CollectRange(ctx, scope, yesterday, yesterday)
}

// CollectRange fetches costs for a custom date range.
func (c *Connector) CollectRange(ctx context.Context, scope connectors.Scope, from, to time.Time) (*connectors.Collection, error) {
	ctx, span := tracing.StartSpan(ctx, "cost.Connector.CollectRange")
	defer span.End()

	url := endpoint(scope.SubscriptionID)

	var actual, amortized queryResponse
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return c.client.PostJSON(groupCtx, scope.AzureTenantID, url, buildPayload("ActualCost", from, to), &actual)
	})
	group.Go(func() error {
		return c.client.PostJSON(groupCtx, scope.AzureTenantID, url, buildPayload("AmortizedCost", from, to), &amortized)
	})
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("cost query failed: %w", err)
	}

	records := mergeCostRows(parseCostRows(actual), parseCostRows(amortized), scope)

	c.logger.WithContext(ctx).
		WithField("count", len(records)).
		WithField("from_date", from.Format("2006-01-02")).
		WithField("to_date", to.Format("2006-01-02")).
		WithField("subscription_id", scope.SubscriptionID).
		WithField("tenant_id", scope.TenantID).
		Info("collected daily costs")

	return &connectors.Collection{
		Raw: map[string]any{
			"actual":    actual.Properties,
			"amortized": amortized.Properties,
		},
		RawCount: len(records),
		Records:  records,
	}, nil
}

type costKey struct {
	resourceGroup string
	serviceName   string
	usageDate     time.Time
}

// mergeCostRows joins amortized costs onto the actual cost rows. Both
// queries also group by meter category, so several rows can share one
// curated key; those are summed into a single record because the batch
// upsert cannot carry the same conflict target twice. The meter category
// survives only when a single one contributed. A grouping with no amortized
// match keeps a nil amortized cost rather than repeating the actual figure.
func mergeCostRows(actualRows, amortizedRows []costRow, scope connectors.Scope) []models.Record {
	amortizedTotals := make(map[costKey]float64, len(amortizedRows))
	for _, row := range amortizedRows {
		amortizedTotals[costKey{row.resourceGroup, row.serviceName, row.usageDate}] += row.cost
	}

	grouped := make(map[costKey]*models.CostDaily, len(actualRows))
	order := make([]costKey, 0, len(actualRows))
	for _, row := range actualRows {
		key := costKey{row.resourceGroup, row.serviceName, row.usageDate}
		record, ok := grouped[key]
		if !ok {
			record = &models.CostDaily{
				TenantID:       scope.TenantID,
				SubscriptionID: scope.SubscriptionID,
				UsageDate:      row.usageDate,
				ServiceName:    row.serviceName,
				ResourceGroup:  row.resourceGroup,
				Currency:       row.currency,
			}
			if row.meterCategory != "" {
				meterCategory := row.meterCategory
				record.MeterCategory = &meterCategory
			}
			if amortizedCost, found := amortizedTotals[key]; found {
				total := amortizedCost
				record.AmortizedCost = &total
			}
			grouped[key] = record
			order = append(order, key)
		} else if record.MeterCategory != nil && *record.MeterCategory != row.meterCategory {
			// mixed meter categories make the column meaningless
			record.MeterCategory = nil
		}
		record.Cost += row.cost
	}

	records := make([]models.Record, 0, len(order))
	for _, key := range order {
		records = append(records, *grouped[key])
	}
	return records
}
