package models

import "time"

// MetricSummary is a per-resource utilization summary over the lookback
// window. One row per metric; the underutilized flag is derived per VM and
// stamped on each of its metric rows.
// Natural key: (tenant_id, resource_id, metric_name).
type MetricSummary struct {
	ID             string    `json:"id" db:"id"`
	TenantID       string    `json:"tenant_id" db:"tenant_id"`
	SubscriptionID string    `json:"subscription_id" db:"subscription_id"`
	ResourceID     string    `json:"resource_id" db:"resource_id"`
	MetricName     string    `json:"metric_name" db:"metric_name"`
	AvgValue       float64   `json:"avg_value" db:"avg_value"`
	MaxValue       float64   `json:"max_value" db:"max_value"`
	MinValue       float64   `json:"min_value" db:"min_value"`
	P95Value       float64   `json:"p95_value" db:"p95_value"`
	SampleCount    int       `json:"sample_count" db:"sample_count"`
	LookbackDays   int       `json:"lookback_days" db:"lookback_days"`
	Unit           string    `json:"unit" db:"unit"`
	Underutilized  bool      `json:"underutilized" db:"underutilized"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}
