// Package tenants exposes the minimal registry surface the ingestion
// pipeline needs: registering tenants and linking subscriptions.
package tenants

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/utils"
)

type tenantStore interface {
	ListActiveTenants(ctx context.Context) ([]models.Tenant, error)
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	ListActiveSubscriptions(ctx context.Context, tenantID string) ([]models.Subscription, error)
	CreateTenant(ctx context.Context, tenant models.Tenant) (*models.Tenant, error)
	CreateSubscription(ctx context.Context, subscription models.Subscription) (*models.Subscription, error)
}

// Handler serves the tenant registry endpoints.
type Handler struct {
	tenants tenantStore
	logger  ectologger.Logger
}

// NewHandler creates a tenant registry handler.
func NewHandler(tenants tenantStore, logger ectologger.Logger) *Handler {
	return &Handler{
		tenants: tenants,
		logger:  logger,
	}
}

// Register registers tenant registry routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.ListTenants)
	g.POST("", h.CreateTenant)
	g.GET("/:tenant_id", h.GetTenant)
	g.GET("/:tenant_id/subscriptions", h.ListSubscriptions)
	g.POST("/:tenant_id/subscriptions", h.CreateSubscription)
}

// CreateTenantRequest is the request body for registering a tenant.
type CreateTenantRequest struct {
	Name          string `json:"name" validate:"required"`
	AzureTenantID string `json:"azure_tenant_id" validate:"required,uuid"`
	IsActive      *bool  `json:"is_active,omitempty"`
}

// CreateSubscriptionRequest is the request body for linking a subscription.
type CreateSubscriptionRequest struct {
	SubscriptionID string `json:"subscription_id" validate:"required,uuid"`
	DisplayName    string `json:"display_name"`
	IsActive       *bool  `json:"is_active,omitempty"`
}

// ListTenants returns the tenants enabled for ingestion.
func (h *Handler) ListTenants(c echo.Context) error {
	ctx := c.Request().Context()

	tenants, err := h.tenants.ListActiveTenants(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, tenants)
}

// GetTenant returns a tenant by id.
func (h *Handler) GetTenant(c echo.Context) error {
	ctx := c.Request().Context()

	tenant, err := h.tenants.GetTenant(ctx, c.Param("tenant_id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, tenant)
}

// CreateTenant registers a tenant. New tenants are active unless the request
// says otherwise.
func (h *Handler) CreateTenant(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := utils.BindRequest[CreateTenantRequest](c)
	if err != nil {
		return err
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	created, err := h.tenants.CreateTenant(ctx, models.Tenant{
		Name:          req.Name,
		AzureTenantID: req.AzureTenantID,
		IsActive:      isActive,
	})
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).
		WithField("tenant_id", created.ID).
		WithField("name", created.Name).
		Info("tenant registered")

	return c.JSON(http.StatusCreated, created)
}

// ListSubscriptions returns a tenant's active subscriptions.
func (h *Handler) ListSubscriptions(c echo.Context) error {
	ctx := c.Request().Context()

	// 404 for unknown tenants instead of an empty list
	tenant, err := h.tenants.GetTenant(ctx, c.Param("tenant_id"))
	if err != nil {
		return err
	}

	subscriptions, err := h.tenants.ListActiveSubscriptions(ctx, tenant.ID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, subscriptions)
}

// CreateSubscription links an Azure subscription to a tenant.
func (h *Handler) CreateSubscription(c echo.Context) error {
	ctx := c.Request().Context()

	tenant, err := h.tenants.GetTenant(ctx, c.Param("tenant_id"))
	if err != nil {
		return err
	}

	req, err := utils.BindRequest[CreateSubscriptionRequest](c)
	if err != nil {
		return err
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	created, err := h.tenants.CreateSubscription(ctx, models.Subscription{
		TenantID:       tenant.ID,
		SubscriptionID: req.SubscriptionID,
		DisplayName:    req.DisplayName,
		IsActive:       isActive,
	})
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).
		WithField("tenant_id", tenant.ID).
		WithField("subscription_id", created.SubscriptionID).
		Info("subscription linked")

	return c.JSON(http.StatusCreated, created)
}
