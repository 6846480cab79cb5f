package advisory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/azure"
	"github.com/Ramsey-B/clover/pkg/connectors"
	"github.com/Ramsey-B/clover/pkg/models"
)

type fakeTokens struct{}

func (fakeTokens) Token(ctx context.Context, azureTenantID string) (string, error) {
	return "test-token", nil
}

// redirectingClient rewrites the Advisor endpoint onto the test server.
type redirectingClient struct {
	inner   *azure.Client
	baseURL string
}

func (c *redirectingClient) NewPager(azureTenantID, target string) *azure.Pager {
	redirected := c.baseURL + "/recommendations"
	if u, err := url.Parse(target); err == nil && u.RawQuery != "" {
		redirected += "?" + u.RawQuery
	}
	return c.inner.NewPager(azureTenantID, redirected)
}

func newTestConnector(t *testing.T, handler http.Handler) (*Connector, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	client := azure.NewClient(azure.Config{RequestsPerSecond: 1000, Burst: 1000, Timeout: 5 * time.Second}, fakeTokens{}, logger)

	return NewConnector(&redirectingClient{inner: client, baseURL: server.URL}, logger), server
}

func testScope() connectors.Scope {
	return connectors.Scope{
		TenantID:       "tenant-a",
		AzureTenantID:  "aad-tenant",
		SubscriptionID: "sub-1",
	}
}

func advisorItem(name, impact string, extended map[string]any) map[string]any {
	return map[string]any{
		"id":   "/subscriptions/sub-1/providers/Microsoft.Advisor/recommendations/" + name,
		"name": name,
		"properties": map[string]any{
			"category":             "Cost",
			"impact":               impact,
			"recommendationTypeId": "rt-" + name,
			"shortDescription": map[string]any{
				"problem":  "Underused resource",
				"solution": "Right-size or shut down",
			},
			"resourceMetadata": map[string]any{
				"resourceId": "/subscriptions/sub-1/resources/" + name,
			},
			"extendedProperties": extended,
		},
	}
}

func TestCollect_MapsRecommendations(t *testing.T) {
	connector, _ := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Category eq 'Cost'", r.URL.Query().Get("$filter"))
		json.NewEncoder(w).Encode(map[string]any{
			"value": []any{
				advisorItem("rec-1", "High", map[string]any{"savingsAmount": "120.555"}),
			},
		})
	}))

	collection, err := connector.Collect(context.Background(), testScope())

	require.NoError(t, err)
	require.Len(t, collection.Records, 1)

	rec := collection.Records[0].(models.Recommendation)
	assert.Equal(t, "tenant-a", rec.TenantID)
	assert.Equal(t, "advisor.rt-rec-1", rec.RuleID)
	assert.Equal(t, "/subscriptions/sub-1/resources/rec-1", rec.ResourceID)
	assert.Equal(t, "Right-size or shut down", rec.Title)
	assert.Equal(t, "Underused resource", rec.Description)
	assert.Equal(t, 120.56, rec.EstimatedMonthlySavings)
	assert.Equal(t, 0.9, rec.ConfidenceScore)
	assert.Equal(t, "open", rec.Status)
}

func TestCollect_PaginationFailureKeepsFetchedPages(t *testing.T) {
	var server *httptest.Server
	connector, server := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/recommendations" {
			json.NewEncoder(w).Encode(map[string]any{
				"value":    []any{advisorItem("rec-1", "Low", nil)},
				"nextLink": server.URL + "/broken",
			})
			return
		}
		w.WriteHeader(http.StatusBadRequest)
	}))

	collection, err := connector.Collect(context.Background(), testScope())

	require.NoError(t, err)
	assert.Len(t, collection.Records, 1)
	require.Len(t, collection.Partial, 1)
	assert.Equal(t, "pagination", collection.Partial[0].Scope)
}

func TestCollect_FirstPageFailureAborts(t *testing.T) {
	connector, _ := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := connector.Collect(context.Background(), testScope())
	require.Error(t, err)
}

func TestExtractSavings(t *testing.T) {
	tests := []struct {
		name     string
		props    map[string]any
		expected float64
	}{
		{
			name:     "direct savings amount",
			props:    map[string]any{"extendedProperties": map[string]any{"savingsAmount": "42.4"}},
			expected: 42.4,
		},
		{
			name:     "annual savings converts to monthly",
			props:    map[string]any{"extendedProperties": map[string]any{"annualSavingsAmount": "1200"}},
			expected: 100.0,
		},
		{
			name:     "monthly savings amount",
			props:    map[string]any{"extendedProperties": map[string]any{"monthlySavingsAmount": 75.0}},
			expected: 75.0,
		},
		{
			name:     "unparseable value falls through to impact",
			props:    map[string]any{"impact": "Medium", "extendedProperties": map[string]any{"savingsAmount": "n/a"}},
			expected: 100.0,
		},
		{
			name:     "no savings uses high impact estimate",
			props:    map[string]any{"impact": "High"},
			expected: 500.0,
		},
		{
			name:     "unknown impact uses low estimate",
			props:    map[string]any{},
			expected: 20.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractSavings(tt.props))
		})
	}
}
