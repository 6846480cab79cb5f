// Package advisory ingests Azure Advisor cost recommendations.
package advisory

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/azure"
	"github.com/Ramsey-B/clover/pkg/connectors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const apiVersion = "2023-01-01"

type pagingClient interface {
	NewPager(azureTenantID, url string) *azure.Pager
}

// Connector fetches Advisor recommendations filtered to the Cost category,
// following nextLink pagination.
type Connector struct {
	client pagingClient
	logger ectologger.Logger
}

// NewConnector creates an advisory connector.
func NewConnector(client pagingClient, logger ectologger.Logger) *Connector {
	return &Connector{client: client, logger: logger}
}

func (c *Connector) Name() string {
	return connectors.NameAdvisory
}

func endpoint(subscriptionID string) string {
	query := url.Values{}
	query.Set("api-version", apiVersion)
	query.Set("$filter", "Category eq 'Cost'")
	return fmt.Sprintf(
		"https://management.azure.com/subscriptions/%s/providers/Microsoft.Advisor/recommendations?%s",
		subscriptionID, query.Encode(),
	)
}

// Collect fetches all cost recommendations for the subscription. A
// mid-pagination failure keeps the pages already fetched and records the
// failure as partial.
func (c *Connector) Collect(ctx context.Context, scope connectors.Scope) (*connectors.Collection, error) {
	ctx, span := tracing.StartSpan(ctx, "advisory.Connector.Collect")
	defer span.End()

	pager := c.client.NewPager(scope.AzureTenantID, endpoint(scope.SubscriptionID))
	items, err := pager.All(ctx)

	var partial []connectors.PartialFailure
	if err != nil {
		var partialErr *azure.PartialError
		if !errors.As(err, &partialErr) {
			return nil, fmt.Errorf("advisor query failed: %w", err)
		}
		c.logger.WithContext(ctx).WithError(err).
			WithField("fetched", len(partialErr.Items)).
			WithField("subscription_id", scope.SubscriptionID).
			Warn("advisor pagination failed partway")
		items = partialErr.Items
		partial = append(partial, connectors.PartialFailure{Scope: "pagination", Error: partialErr.Err.Error()})
	}

	records := make([]models.Record, 0, len(items))
	for _, item := range items {
		records = append(records, mapRecommendation(item, scope))
	}

	c.logger.WithContext(ctx).
		WithField("count", len(records)).
		WithField("subscription_id", scope.SubscriptionID).
		WithField("tenant_id", scope.TenantID).
		Info("collected advisor recommendations")

	return &connectors.Collection{
		Raw:      items,
		RawCount: len(items),
		Records:  records,
		Partial:  partial,
	}, nil
}
