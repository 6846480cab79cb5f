package models

import (
	"time"

	"github.com/Ramsey-B/clover/pkg/database"
)

// RunStatus is the ingestion run state machine. A run only moves to failed
// for orchestrator-level faults; subscription errors are recorded on the
// result and leave the run completed.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IngestionRun tracks one orchestrated ingestion pass.
type IngestionRun struct {
	ID          string                                  `json:"id" db:"id"`
	Status      RunStatus                               `json:"status" db:"status"`
	TriggeredBy string                                  `json:"triggered_by" db:"triggered_by"`
	Connectors  database.JSONB[[]string]                `json:"connectors" db:"connectors"`
	TenantScope *string                                 `json:"tenant_scope,omitempty" db:"tenant_scope"`
	Result      database.JSONB[[]TenantIngestionResult] `json:"result" db:"result"`
	Error       *string                                 `json:"error,omitempty" db:"error"`
	StartedAt   *time.Time                              `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time                              `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time                               `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time                               `json:"updated_at" db:"updated_at"`
}

// SubscriptionIngestionResult is the per-subscription outcome of a run.
type SubscriptionIngestionResult struct {
	SubscriptionID string         `json:"subscription_id"`
	RecordsWritten map[string]int `json:"records_written"`
	Errors         []string       `json:"errors,omitempty"`
}

// Success reports whether the subscription completed without errors.
func (r SubscriptionIngestionResult) Success() bool {
	return len(r.Errors) == 0
}

// TenantIngestionResult aggregates subscription outcomes for one tenant.
type TenantIngestionResult struct {
	TenantID               string                        `json:"tenant_id"`
	SubscriptionsProcessed int                           `json:"subscriptions_processed"`
	SubscriptionsFailed    int                           `json:"subscriptions_failed"`
	TotalRecords           int                           `json:"total_records"`
	DurationMS             float64                       `json:"duration_ms"`
	Results                []SubscriptionIngestionResult `json:"results"`
}
