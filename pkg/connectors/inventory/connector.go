// Package inventory collects the full resource inventory for a subscription
// from Azure Resource Graph, along with waste and right-sizing scans.
package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/connectors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	apiVersion = "2022-10-01"
	endpoint   = "https://management.azure.com/providers/Microsoft.ResourceGraph/resources"
	pageSize   = 1000
)

type apiClient interface {
	PostJSON(ctx context.Context, azureTenantID, url string, body, dest any) error
}

// Connector queries Azure Resource Graph for inventory snapshots. It pages
// through results with $skipToken and converts the column/row wire format
// into keyed rows.
type Connector struct {
	client apiClient
	logger ectologger.Logger
}

// NewConnector creates an inventory connector.
func NewConnector(client apiClient, logger ectologger.Logger) *Connector {
	return &Connector{client: client, logger: logger}
}

func (c *Connector) Name() string {
	return connectors.NameInventory
}

type queryRequest struct {
	Query         string       `json:"query"`
	Subscriptions []string     `json:"subscriptions"`
	Options       queryOptions `json:"options"`
}

type queryOptions struct {
	Top       int    `json:"$top"`
	SkipToken string `json:"$skipToken,omitempty"`
}

type queryResponse struct {
	TotalRecords int       `json:"totalRecords"`
	Count        int       `json:"count"`
	Data         queryData `json:"data"`
	SkipToken    string    `json:"$skipToken"`
}

type queryData struct {
	Columns []queryColumn `json:"columns"`
	Rows    [][]any       `json:"rows"`
}

type queryColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Collect runs the full inventory query plus the waste and right-sizing
// scans. The inventory query is required; scan failures are recorded as
// partial failures and do not abort the collection.
func (c *Connector) Collect(ctx context.Context, scope connectors.Scope) (*connectors.Collection, error) {
	ctx, span := tracing.StartSpan(ctx, "inventory.Connector.Collect")
	defer span.End()

	rows, err := c.runQuery(ctx, scope, queryAllResources)
	if err != nil {
		return nil, fmt.Errorf("inventory query failed: %w", err)
	}

	records := make([]models.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, mapResource(row, scope.TenantID, scope.SubscriptionID))
	}

	scans, partial := c.runScans(ctx, scope)

	c.logger.WithContext(ctx).
		WithField("count", len(records)).
		WithField("subscription_id", scope.SubscriptionID).
		WithField("tenant_id", scope.TenantID).
		Info("collected resource inventory")

	return &connectors.Collection{
		Raw: map[string]any{
			"resources": rows,
			"scans":     scans,
		},
		RawCount: len(rows),
		Records:  records,
		Partial:  partial,
	}, nil
}

// runScans executes the waste and right-sizing queries concurrently. Each
// scan is isolated so one failure does not discard the others.
func (c *Connector) runScans(ctx context.Context, scope connectors.Scope) (map[string][]map[string]any, []connectors.PartialFailure) {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		scans   = make(map[string][]map[string]any, len(scanQueries))
		partial []connectors.PartialFailure
	)

	for name, query := range scanQueries {
		wg.Add(1)
		go func(name, query string) {
			defer wg.Done()

			rows, err := c.runQuery(ctx, scope, query)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				c.logger.WithContext(ctx).WithError(err).
					WithField("scan", name).
					WithField("subscription_id", scope.SubscriptionID).
					Warn("inventory scan failed")
				partial = append(partial, connectors.PartialFailure{Scope: name, Error: err.Error()})
				return
			}
			scans[name] = rows
		}(name, query)
	}
	wg.Wait()

	sort.Slice(partial, func(i, j int) bool { return partial[i].Scope < partial[j].Scope })
	return scans, partial
}

// runQuery executes one KQL query with $skipToken pagination and converts
// the column/row format into keyed rows.
func (c *Connector) runQuery(ctx context.Context, scope connectors.Scope, query string) ([]map[string]any, error) {
	url := endpoint + "?api-version=" + apiVersion

	var results []map[string]any
	skipToken := ""

	for {
		req := queryRequest{
			Query:         strings.TrimSpace(query),
			Subscriptions: []string{scope.SubscriptionID},
			Options:       queryOptions{Top: pageSize, SkipToken: skipToken},
		}

		var resp queryResponse
		if err := c.client.PostJSON(ctx, scope.AzureTenantID, url, req, &resp); err != nil {
			return nil, err
		}

		names := make([]string, len(resp.Data.Columns))
		for i, col := range resp.Data.Columns {
			names[i] = col.Name
		}

		for _, row := range resp.Data.Rows {
			keyed := make(map[string]any, len(names))
			for i, value := range row {
				if i < len(names) {
					keyed[names[i]] = value
				}
			}
			results = append(results, keyed)
		}

		if resp.SkipToken == "" {
			return results, nil
		}
		skipToken = resp.SkipToken

		c.logger.WithContext(ctx).
			WithField("page_results", len(resp.Data.Rows)).
			WithField("total_so_far", len(results)).
			WithField("tenant_id", scope.TenantID).
			Debug("paginating resource graph query")
	}
}
