// Package events emits ingestion run lifecycle events for downstream
// consumers such as reporting and alerting.
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter publishes run lifecycle events.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitRunCompleted emits an ingestion.run.completed event with the
// per-tenant outcome summary.
func (e *Emitter) EmitRunCompleted(ctx context.Context, run models.IngestionRun, results []models.TenantIngestionResult) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRunCompleted")
	defer span.End()

	var processed, failed, records int
	for _, result := range results {
		processed += result.SubscriptionsProcessed
		failed += result.SubscriptionsFailed
		records += result.TotalRecords
	}

	data := map[string]any{
		"schema_version":          SchemaVersion,
		"tenant_count":            len(results),
		"subscriptions_processed": processed,
		"subscriptions_failed":    failed,
		"total_records":           records,
		"results":                 results,
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return err
	}

	event := &kafka.RunEvent{
		EventType:   "ingestion.run.completed",
		RunID:       run.ID,
		Status:      string(models.RunStatusCompleted),
		TriggeredBy: run.TriggeredBy,
		TenantScope: run.TenantScope,
		Connectors:  run.Connectors.Data,
		Data:        dataJSON,
	}

	if err := e.producer.PublishRunEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit ingestion.run.completed event")
		return err
	}

	return nil
}
