// Package ingestion exposes the run trigger and status API.
package ingestion

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/orchestrator"
	"github.com/Ramsey-B/clover/pkg/utils"
)

type orchestratorService interface {
	StartRun(ctx context.Context, req orchestrator.TriggerRequest) (*models.IngestionRun, error)
	ExecuteRun(ctx context.Context, run *models.IngestionRun)
}

type runReader interface {
	GetByID(ctx context.Context, runID string) (*models.IngestionRun, error)
	ListRecent(ctx context.Context, limit int) ([]models.IngestionRun, error)
}

// Handler serves the ingestion run endpoints.
type Handler struct {
	orchestrator orchestratorService
	runs         runReader
	logger       ectologger.Logger
}

// NewHandler creates an ingestion handler.
func NewHandler(orchestratorService orchestratorService, runs runReader, logger ectologger.Logger) *Handler {
	return &Handler{
		orchestrator: orchestratorService,
		runs:         runs,
		logger:       logger,
	}
}

// Register registers ingestion run routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/runs", h.TriggerRun)
	g.GET("/runs", h.ListRuns)
	g.GET("/runs/:run_id", h.GetRun)
}

// TriggerRunRequest is the request body for triggering an ingestion run.
// Omitting connectors runs all of them.
type TriggerRunRequest struct {
	Connectors  []string `json:"connectors,omitempty" validate:"omitempty,dive,oneof=inventory cost advisory utilization"`
	TenantScope *string  `json:"tenant_scope,omitempty" validate:"omitempty,uuid"`
}

// TriggerRun creates a run and executes it in the background.
func (h *Handler) TriggerRun(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := utils.BindRequest[TriggerRunRequest](c)
	if err != nil {
		return err
	}

	run, err := h.orchestrator.StartRun(ctx, orchestrator.TriggerRequest{
		TriggeredBy: "api",
		Connectors:  req.Connectors,
		TenantScope: req.TenantScope,
	})
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).
		WithField("run_id", run.ID).
		WithField("tenant_scope", req.TenantScope).
		Info("ingestion run triggered")

	// The run outlives the request; detach it from the request context but
	// keep the correlation id.
	runCtx := appctx.SetRequestID(context.Background(), appctx.GetRequestID(ctx))
	go h.orchestrator.ExecuteRun(runCtx, run)

	return c.JSON(http.StatusAccepted, run)
}

// GetRun returns a run by id.
func (h *Handler) GetRun(c echo.Context) error {
	ctx := c.Request().Context()

	run, err := h.runs.GetByID(ctx, c.Param("run_id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, run)
}

// ListRuns returns the most recent runs, newest first.
func (h *Handler) ListRuns(c echo.Context) error {
	ctx := c.Request().Context()

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err == nil {
			limit = parsed
		}
	}

	runs, err := h.runs.ListRecent(ctx, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, runs)
}
