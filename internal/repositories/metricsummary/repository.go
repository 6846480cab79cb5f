package metricsummary

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const metricSummaryTable = "metric_summaries"

var metricSummaryStruct = database.NewStruct(new(models.MetricSummary))

// Repository handles curated metric summary persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new metric summary repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// UpsertBatch writes metric summaries keyed on
// (tenant_id, resource_id, metric_name). Each ingestion replaces the
// summary with the latest lookback window.
func (r *Repository) UpsertBatch(ctx context.Context, summaries []models.MetricSummary) error {
	ctx, span := tracing.StartSpan(ctx, "metricsummary.Repository.UpsertBatch")
	defer span.End()

	if len(summaries) == 0 {
		return nil
	}

	now := time.Now().UTC()

	ib := database.NewInsertBuilder().
		InsertInto(metricSummaryTable).
		Cols("id", "tenant_id", "subscription_id", "resource_id", "metric_name", "avg_value", "max_value", "min_value", "p95_value", "sample_count", "lookback_days", "unit", "underutilized")
	for _, summary := range summaries {
		ib = ib.Values(
			uuid.New().String(),
			summary.TenantID,
			summary.SubscriptionID,
			summary.ResourceID,
			summary.MetricName,
			summary.AvgValue,
			summary.MaxValue,
			summary.MinValue,
			summary.P95Value,
			summary.SampleCount,
			summary.LookbackDays,
			summary.Unit,
			summary.Underutilized,
		)
	}

	ub := ib.OnConflict("tenant_id", "resource_id", "metric_name")
	ub.Set(
		ub.Assign("subscription_id", database.Excluded("subscription_id")),
		ub.Assign("avg_value", database.Excluded("avg_value")),
		ub.Assign("max_value", database.Excluded("max_value")),
		ub.Assign("min_value", database.Excluded("min_value")),
		ub.Assign("p95_value", database.Excluded("p95_value")),
		ub.Assign("sample_count", database.Excluded("sample_count")),
		ub.Assign("lookback_days", database.Excluded("lookback_days")),
		ub.Assign("unit", database.Excluded("unit")),
		ub.Assign("underutilized", database.Excluded("underutilized")),
		ub.Assign("updated_at", now),
	)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).
			WithField("count", len(summaries)).
			WithField("tenant_id", summaries[0].TenantID).
			Error("Failed to upsert metric summaries")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to upsert metric summaries: %v", err)
	}
	return nil
}

// ListUnderutilized returns the summaries for resources flagged as
// underutilized in a tenant.
func (r *Repository) ListUnderutilized(ctx context.Context, tenantID string) ([]models.MetricSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "metricsummary.Repository.ListUnderutilized")
	defer span.End()

	sb := metricSummaryStruct.SelectFrom(metricSummaryTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("underutilized", true),
	)
	sb.OrderBy("resource_id", "metric_name")

	query, args := sb.Build()
	var summaries []models.MetricSummary
	if err := r.db.SelectContext(ctx, &summaries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("tenant_id", tenantID).Error("Failed to list metric summaries")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list metric summaries: %v", err)
	}
	return summaries, nil
}
