package cost

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

const costTable = "costs_daily"

var costStruct = database.NewStruct(new(models.CostDaily))

// Repository handles curated daily cost persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new cost repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// UpsertBatch writes daily cost rows keyed on
// (tenant_id, subscription_id, usage_date, service_name, resource_group).
// Re-ingesting a day replaces the figures for its groupings.
func (r *Repository) UpsertBatch(ctx context.Context, costs []models.CostDaily) error {
	ctx, span := tracing.StartSpan(ctx, "cost.Repository.UpsertBatch")
	defer span.End()

	if len(costs) == 0 {
		return nil
	}

	now := time.Now().UTC()

	ib := database.NewInsertBuilder().
		InsertInto(costTable).
		Cols("id", "tenant_id", "subscription_id", "usage_date", "service_name", "resource_group", "meter_category", "cost", "amortized_cost", "currency")
	for _, cost := range costs {
		ib = ib.Values(
			uuid.New().String(),
			cost.TenantID,
			cost.SubscriptionID,
			cost.UsageDate,
			cost.ServiceName,
			cost.ResourceGroup,
			cost.MeterCategory,
			cost.Cost,
			cost.AmortizedCost,
			cost.Currency,
		)
	}

	ub := ib.OnConflict("tenant_id", "subscription_id", "usage_date", "service_name", "resource_group")
	ub.Set(
		ub.Assign("meter_category", database.Excluded("meter_category")),
		ub.Assign("cost", database.Excluded("cost")),
		ub.Assign("amortized_cost", database.Excluded("amortized_cost")),
		ub.Assign("currency", database.Excluded("currency")),
		ub.Assign("updated_at", now),
	)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).
			WithField("count", len(costs)).
			WithField("tenant_id", costs[0].TenantID).
			Error("Failed to upsert daily costs")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to upsert daily costs: %v", err)
	}
	return nil
}

// ListByDateRange returns cost rows for a tenant inside [from, to].
func (r *Repository) ListByDateRange(ctx context.Context, tenantID string, from, to time.Time) ([]models.CostDaily, error) {
	ctx, span := tracing.StartSpan(ctx, "cost.Repository.ListByDateRange")
	defer span.End()

	sb := costStruct.SelectFrom(costTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.GreaterEqualThan("usage_date", from),
		sb.LessEqualThan("usage_date", to),
	)
	sb.OrderBy("usage_date", "service_name")

	query, args := sb.Build()
	var costs []models.CostDaily
	if err := r.db.SelectContext(ctx, &costs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("tenant_id", tenantID).Error("Failed to list daily costs")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list daily costs: %v", err)
	}
	return costs, nil
}
