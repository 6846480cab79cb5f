package models

import "time"

// CostDaily is one day of cost for a (service, resource group) pair within a
// subscription. AmortizedCost stays nil when the amortized query had no row
// for the same grouping.
// Natural key: (tenant_id, subscription_id, usage_date, service_name, resource_group).
type CostDaily struct {
	ID             string    `json:"id" db:"id"`
	TenantID       string    `json:"tenant_id" db:"tenant_id"`
	SubscriptionID string    `json:"subscription_id" db:"subscription_id"`
	UsageDate      time.Time `json:"usage_date" db:"usage_date"`
	ServiceName    string    `json:"service_name" db:"service_name"`
	ResourceGroup  string    `json:"resource_group" db:"resource_group"`
	MeterCategory  *string   `json:"meter_category,omitempty" db:"meter_category"`
	Cost           float64   `json:"cost" db:"cost"`
	AmortizedCost  *float64  `json:"amortized_cost,omitempty" db:"amortized_cost"`
	Currency       string    `json:"currency" db:"currency"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}
