package resource

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

const resourceTable = "resources"

var resourceStruct = database.NewStruct(new(models.Resource))

// Repository handles curated resource persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new resource repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// UpsertBatch writes resources keyed on (tenant_id, resource_id). Existing
// rows are refreshed in place so resource identity survives re-ingestion.
func (r *Repository) UpsertBatch(ctx context.Context, resources []models.Resource) error {
	ctx, span := tracing.StartSpan(ctx, "resource.Repository.UpsertBatch")
	defer span.End()

	if len(resources) == 0 {
		return nil
	}

	now := time.Now().UTC()

	ib := database.NewInsertBuilder().
		InsertInto(resourceTable).
		Cols("id", "tenant_id", "subscription_id", "resource_id", "name", "type", "resource_group", "location", "kind", "tags", "properties", "last_seen")
	for _, resource := range resources {
		ib = ib.Values(
			uuid.New().String(),
			resource.TenantID,
			resource.SubscriptionID,
			resource.ResourceID,
			resource.Name,
			resource.Type,
			resource.ResourceGroup,
			resource.Location,
			resource.Kind,
			resource.Tags,
			resource.Properties,
			resource.LastSeen,
		)
	}

	ub := ib.OnConflict("tenant_id", "resource_id")
	ub.Set(
		ub.Assign("subscription_id", database.Excluded("subscription_id")),
		ub.Assign("name", database.Excluded("name")),
		ub.Assign("type", database.Excluded("type")),
		ub.Assign("resource_group", database.Excluded("resource_group")),
		ub.Assign("location", database.Excluded("location")),
		ub.Assign("kind", database.Excluded("kind")),
		ub.Assign("tags", database.Excluded("tags")),
		ub.Assign("properties", database.Excluded("properties")),
		ub.Assign("last_seen", database.Excluded("last_seen")),
		ub.Assign("updated_at", now),
	)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).
			WithField("count", len(resources)).
			WithField("tenant_id", resources[0].TenantID).
			Error("Failed to upsert resources")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to upsert resources: %v", err)
	}
	return nil
}

// ListByTenant returns the curated resources for a tenant, optionally
// filtered by subscription.
func (r *Repository) ListByTenant(ctx context.Context, tenantID, subscriptionID string, limit int) ([]models.Resource, error) {
	ctx, span := tracing.StartSpan(ctx, "resource.Repository.ListByTenant")
	defer span.End()

	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	sb := resourceStruct.SelectFrom(resourceTable)
	where := []string{sb.Equal("tenant_id", tenantID)}
	if subscriptionID != "" {
		where = append(where, sb.Equal("subscription_id", subscriptionID))
	}
	sb.Where(where...)
	sb.OrderBy("type", "name")
	sb.Limit(limit)

	query, args := sb.Build()
	var resources []models.Resource
	if err := r.db.SelectContext(ctx, &resources, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("tenant_id", tenantID).Error("Failed to list resources")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list resources: %v", err)
	}
	return resources, nil
}
