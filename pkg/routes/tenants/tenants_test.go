package tenants

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/models"
)

type fakeTenantStore struct {
	tenants       map[string]*models.Tenant
	subscriptions map[string][]models.Subscription
	created       []models.Tenant
	linked        []models.Subscription
}

func newFakeStore() *fakeTenantStore {
	return &fakeTenantStore{
		tenants:       map[string]*models.Tenant{},
		subscriptions: map[string][]models.Subscription{},
	}
}

func (f *fakeTenantStore) ListActiveTenants(ctx context.Context) ([]models.Tenant, error) {
	var out []models.Tenant
	for _, tenant := range f.tenants {
		out = append(out, *tenant)
	}
	return out, nil
}

func (f *fakeTenantStore) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	tenant, ok := f.tenants[id]
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "tenant %s not found", id)
	}
	return tenant, nil
}

func (f *fakeTenantStore) ListActiveSubscriptions(ctx context.Context, tenantID string) ([]models.Subscription, error) {
	return f.subscriptions[tenantID], nil
}

func (f *fakeTenantStore) CreateTenant(ctx context.Context, tenant models.Tenant) (*models.Tenant, error) {
	tenant.ID = "tenant-1"
	f.created = append(f.created, tenant)
	f.tenants[tenant.ID] = &tenant
	return &tenant, nil
}

func (f *fakeTenantStore) CreateSubscription(ctx context.Context, subscription models.Subscription) (*models.Subscription, error) {
	subscription.ID = "sub-row-1"
	f.linked = append(f.linked, subscription)
	return &subscription, nil
}

func newTestHandler(store *fakeTenantStore) *Handler {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewHandler(store, logger)
}

func doRequest(t *testing.T, handler echo.HandlerFunc, req *http.Request, pathParams map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	for name, value := range pathParams {
		c.SetParamNames(name)
		c.SetParamValues(value)
	}

	if err := handler(c); err != nil {
		logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
		middleware.Error(logger)(err, c)
	}
	return rec
}

func TestCreateTenant(t *testing.T) {
	store := newFakeStore()
	handler := newTestHandler(store)

	body := `{"name": "Acme", "azure_tenant_id": "2f8c3f2e-8f3a-4a7e-b1a9-111111111111"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	rec := doRequest(t, handler.CreateTenant, req, nil)

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, store.created, 1)
	assert.Equal(t, "Acme", store.created[0].Name)
	assert.True(t, store.created[0].IsActive)
}

func TestCreateTenant_RequiresAzureTenantID(t *testing.T) {
	store := newFakeStore()
	handler := newTestHandler(store)

	body := `{"name": "Acme"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	rec := doRequest(t, handler.CreateTenant, req, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, store.created)
}

func TestCreateSubscription(t *testing.T) {
	store := newFakeStore()
	store.tenants["tenant-1"] = &models.Tenant{ID: "tenant-1", Name: "Acme"}
	handler := newTestHandler(store)

	body := `{"subscription_id": "3e1a9c64-0000-4000-8000-222222222222", "display_name": "prod"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants/tenant-1/subscriptions", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	rec := doRequest(t, handler.CreateSubscription, req, map[string]string{"tenant_id": "tenant-1"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, store.linked, 1)
	assert.Equal(t, "tenant-1", store.linked[0].TenantID)
	assert.Equal(t, "prod", store.linked[0].DisplayName)
}

func TestCreateSubscription_UnknownTenant(t *testing.T) {
	store := newFakeStore()
	handler := newTestHandler(store)

	body := `{"subscription_id": "3e1a9c64-0000-4000-8000-222222222222"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants/missing/subscriptions", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	rec := doRequest(t, handler.CreateSubscription, req, map[string]string{"tenant_id": "missing"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, store.linked)
}

func TestListSubscriptions(t *testing.T) {
	store := newFakeStore()
	store.tenants["tenant-1"] = &models.Tenant{ID: "tenant-1"}
	store.subscriptions["tenant-1"] = []models.Subscription{
		{ID: "s1", TenantID: "tenant-1", SubscriptionID: "sub-1"},
	}
	handler := newTestHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tenants/tenant-1/subscriptions", nil)
	rec := doRequest(t, handler.ListSubscriptions, req, map[string]string{"tenant_id": "tenant-1"})

	assert.Equal(t, http.StatusOK, rec.Code)

	var listed []models.Subscription
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "sub-1", listed[0].SubscriptionID)
}
