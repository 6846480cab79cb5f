package recommendation

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

const recommendationTable = "recommendations"

var recommendationStruct = database.NewStruct(new(models.Recommendation))

// Repository handles curated recommendation persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new recommendation repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// UpsertBatch writes recommendations keyed on
// (tenant_id, resource_id, rule_id). The status column is not refreshed on
// conflict so triage state set by users survives re-ingestion.
func (r *Repository) UpsertBatch(ctx context.Context, recommendations []models.Recommendation) error {
	ctx, span := tracing.StartSpan(ctx, "recommendation.Repository.UpsertBatch")
	defer span.End()

	if len(recommendations) == 0 {
		return nil
	}

	now := time.Now().UTC()

	ib := database.NewInsertBuilder().
		InsertInto(recommendationTable).
		Cols("id", "tenant_id", "subscription_id", "resource_id", "rule_id", "category", "impact", "title", "description", "estimated_monthly_savings", "confidence_score", "status", "extended_properties")
	for _, rec := range recommendations {
		ib = ib.Values(
			uuid.New().String(),
			rec.TenantID,
			rec.SubscriptionID,
			rec.ResourceID,
			rec.RuleID,
			rec.Category,
			rec.Impact,
			rec.Title,
			rec.Description,
			rec.EstimatedMonthlySavings,
			rec.ConfidenceScore,
			rec.Status,
			rec.ExtendedProperties,
		)
	}

	ub := ib.OnConflict("tenant_id", "resource_id", "rule_id")
	ub.Set(
		ub.Assign("subscription_id", database.Excluded("subscription_id")),
		ub.Assign("category", database.Excluded("category")),
		ub.Assign("impact", database.Excluded("impact")),
		ub.Assign("title", database.Excluded("title")),
		ub.Assign("description", database.Excluded("description")),
		ub.Assign("estimated_monthly_savings", database.Excluded("estimated_monthly_savings")),
		ub.Assign("confidence_score", database.Excluded("confidence_score")),
		ub.Assign("extended_properties", database.Excluded("extended_properties")),
		ub.Assign("updated_at", now),
	)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).
			WithField("count", len(recommendations)).
			WithField("tenant_id", recommendations[0].TenantID).
			Error("Failed to upsert recommendations")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to upsert recommendations: %v", err)
	}
	return nil
}

// ListOpenByTenant returns open recommendations ordered by estimated savings.
func (r *Repository) ListOpenByTenant(ctx context.Context, tenantID string, limit int) ([]models.Recommendation, error) {
	ctx, span := tracing.StartSpan(ctx, "recommendation.Repository.ListOpenByTenant")
	defer span.End()

	if limit <= 0 || limit > 500 {
		limit = 500
	}

	sb := recommendationStruct.SelectFrom(recommendationTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("status", "open"),
	)
	sb.OrderBy("estimated_monthly_savings DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var recommendations []models.Recommendation
	if err := r.db.SelectContext(ctx, &recommendations, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("tenant_id", tenantID).Error("Failed to list recommendations")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list recommendations: %v", err)
	}
	return recommendations, nil
}
