package tenant

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	tenantTable       = "tenants"
	subscriptionTable = "subscriptions"
)

var (
	tenantStruct       = database.NewStruct(new(models.Tenant))
	subscriptionStruct = database.NewStruct(new(models.Subscription))
)

// Repository handles tenant and subscription persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new tenant repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ListActiveTenants returns all tenants enabled for ingestion.
func (r *Repository) ListActiveTenants(ctx context.Context) ([]models.Tenant, error) {
	ctx, span := tracing.StartSpan(ctx, "tenant.Repository.ListActiveTenants")
	defer span.End()

	sb := tenantStruct.SelectFrom(tenantTable)
	sb.Where(sb.Equal("is_active", true))
	sb.OrderBy("name")

	query, args := sb.Build()
	var tenants []models.Tenant
	if err := r.db.SelectContext(ctx, &tenants, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list active tenants")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list tenants: %v", err)
	}
	return tenants, nil
}

// GetTenant returns a tenant by its internal id.
func (r *Repository) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	ctx, span := tracing.StartSpan(ctx, "tenant.Repository.GetTenant")
	defer span.End()

	sb := tenantStruct.SelectFrom(tenantTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var tenant models.Tenant
	if err := r.db.GetContext(ctx, &tenant, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "tenant %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("tenant_id", id).Error("Failed to get tenant")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get tenant: %v", err)
	}
	return &tenant, nil
}

// ListActiveSubscriptions returns the active subscriptions for a tenant.
func (r *Repository) ListActiveSubscriptions(ctx context.Context, tenantID string) ([]models.Subscription, error) {
	ctx, span := tracing.StartSpan(ctx, "tenant.Repository.ListActiveSubscriptions")
	defer span.End()

	sb := subscriptionStruct.SelectFrom(subscriptionTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("is_active", true),
	)
	sb.OrderBy("subscription_id")

	query, args := sb.Build()
	var subscriptions []models.Subscription
	if err := r.db.SelectContext(ctx, &subscriptions, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("tenant_id", tenantID).Error("Failed to list subscriptions")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list subscriptions: %v", err)
	}
	return subscriptions, nil
}

// CreateTenant registers a new tenant.
func (r *Repository) CreateTenant(ctx context.Context, tenant models.Tenant) (*models.Tenant, error) {
	ctx, span := tracing.StartSpan(ctx, "tenant.Repository.CreateTenant")
	defer span.End()

	if tenant.ID == "" {
		tenant.ID = uuid.New().String()
	}

	ib := database.NewInsertBuilder().
		InsertInto(tenantTable).
		Cols("id", "name", "azure_tenant_id", "is_active").
		Values(tenant.ID, tenant.Name, tenant.AzureTenantID, tenant.IsActive).
		Returning("id", "name", "azure_tenant_id", "is_active", "created_at", "updated_at")

	query, args := ib.Build()
	var created models.Tenant
	if err := r.db.GetContext(ctx, &created, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("name", tenant.Name).Error("Failed to create tenant")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to create tenant: %v", err)
	}
	return &created, nil
}

// CreateSubscription links a subscription to a tenant.
func (r *Repository) CreateSubscription(ctx context.Context, subscription models.Subscription) (*models.Subscription, error) {
	ctx, span := tracing.StartSpan(ctx, "tenant.Repository.CreateSubscription")
	defer span.End()

	if subscription.ID == "" {
		subscription.ID = uuid.New().String()
	}

	ib := database.NewInsertBuilder().
		InsertInto(subscriptionTable).
		Cols("id", "tenant_id", "subscription_id", "display_name", "is_active").
		Values(subscription.ID, subscription.TenantID, subscription.SubscriptionID, subscription.DisplayName, subscription.IsActive).
		Returning("id", "tenant_id", "subscription_id", "display_name", "is_active", "created_at", "updated_at")

	query, args := ib.Build()
	var created models.Subscription
	if err := r.db.GetContext(ctx, &created, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).
			WithField("tenant_id", subscription.TenantID).
			WithField("subscription_id", subscription.SubscriptionID).
			Error("Failed to create subscription")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to create subscription: %v", err)
	}
	return &created, nil
}
