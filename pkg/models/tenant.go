package models

import "time"

// Tenant is an Azure tenant registered for ingestion.
type Tenant struct {
	ID            string    `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	AzureTenantID string    `json:"azure_tenant_id" db:"azure_tenant_id"`
	IsActive      bool      `json:"is_active" db:"is_active"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// Subscription is an Azure subscription linked to a tenant.
type Subscription struct {
	ID             string    `json:"id" db:"id"`
	TenantID       string    `json:"tenant_id" db:"tenant_id"`
	SubscriptionID string    `json:"subscription_id" db:"subscription_id"`
	DisplayName    string    `json:"display_name" db:"display_name"`
	IsActive       bool      `json:"is_active" db:"is_active"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}
