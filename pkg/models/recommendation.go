package models

import (
	"time"

	"github.com/Ramsey-B/clover/pkg/database"
)

// Recommendation is a normalized Azure Advisor cost recommendation.
// Natural key: (tenant_id, resource_id, rule_id).
type Recommendation struct {
	ID                      string                         `json:"id" db:"id"`
	TenantID                string                         `json:"tenant_id" db:"tenant_id"`
	SubscriptionID          string                         `json:"subscription_id" db:"subscription_id"`
	ResourceID              string                         `json:"resource_id" db:"resource_id"`
	RuleID                  string                         `json:"rule_id" db:"rule_id"`
	Category                string                         `json:"category" db:"category"`
	Impact                  string                         `json:"impact" db:"impact"`
	Title                   string                         `json:"title" db:"title"`
	Description             string                         `json:"description" db:"description"`
	EstimatedMonthlySavings float64                        `json:"estimated_monthly_savings" db:"estimated_monthly_savings"`
	ConfidenceScore         float64                        `json:"confidence_score" db:"confidence_score"`
	Status                  string                         `json:"status" db:"status"`
	ExtendedProperties      database.JSONB[map[string]any] `json:"extended_properties" db:"extended_properties"`
	CreatedAt               time.Time                      `json:"created_at" db:"created_at"`
	UpdatedAt               time.Time                      `json:"updated_at" db:"updated_at"`
}
