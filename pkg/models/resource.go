package models

import (
	"time"

	"github.com/Ramsey-B/clover/pkg/database"
)

// Resource is a normalized Azure resource from the inventory snapshot.
// Natural key: (tenant_id, resource_id).
type Resource struct {
	ID             string                          `json:"id" db:"id"`
	TenantID       string                          `json:"tenant_id" db:"tenant_id"`
	SubscriptionID string                          `json:"subscription_id" db:"subscription_id"`
	ResourceID     string                          `json:"resource_id" db:"resource_id"`
	Name           string                          `json:"name" db:"name"`
	Type           string                          `json:"type" db:"type"`
	ResourceGroup  string                          `json:"resource_group" db:"resource_group"`
	Location       string                          `json:"location" db:"location"`
	Kind           *string                         `json:"kind,omitempty" db:"kind"`
	Tags           database.JSONB[map[string]any]  `json:"tags" db:"tags"`
	Properties     database.JSONB[map[string]any]  `json:"properties" db:"properties"`
	LastSeen       time.Time                       `json:"last_seen" db:"last_seen"`
	CreatedAt      time.Time                       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time                       `json:"updated_at" db:"updated_at"`
}
