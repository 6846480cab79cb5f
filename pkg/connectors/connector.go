// Package connectors defines the contract shared by the Azure data
// connectors. A connector collects one data domain for one subscription and
// returns both the raw provider payload and the normalized records.
package connectors

import (
	"context"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Connector names for raw snapshot paths, metrics, and run results.
const (
	NameInventory   = "inventory"
	NameCost        = "cost"
	NameAdvisory    = "advisory"
	NameUtilization = "utilization"
)

// Scope identifies the tenant and subscription a collection runs against.
type Scope struct {
	// TenantID is the internal tenant identifier.
	TenantID string
	// AzureTenantID is the Azure AD tenant used for token acquisition.
	AzureTenantID string
	// SubscriptionID is the Azure subscription being collected.
	SubscriptionID string
	// VMResourceIDs carries the virtual machine IDs discovered by the
	// inventory connector, consumed by the utilization connector.
	VMResourceIDs []string
}

// PartialFailure records a recoverable failure inside a collection, scoped
// to the query or resource that failed.
type PartialFailure struct {
	Scope string `json:"scope"`
	Error string `json:"error"`
}

// Collection is the output of one connector pass.
type Collection struct {
	// Raw is the provider payload persisted to the raw store.
	Raw any
	// RawCount is the number of raw items in the payload.
	RawCount int
	// Records are the normalized rows for the curated store.
	Records []models.Record
	// Partial lists recoverable failures that did not abort the collection.
	Partial []PartialFailure
}

// Connector collects one data domain for a subscription.
type Connector interface {
	Name() string
	Collect(ctx context.Context, scope Scope) (*Collection, error)
}
