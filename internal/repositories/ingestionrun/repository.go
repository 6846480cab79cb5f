package ingestionrun

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const runTable = "ingestion_runs"

var runStruct = database.NewStruct(new(models.IngestionRun))

// Repository handles ingestion run persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new ingestion run repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a pending run row.
func (r *Repository) Create(ctx context.Context, run models.IngestionRun) (*models.IngestionRun, error) {
	ctx, span := tracing.StartSpan(ctx, "ingestionrun.Repository.Create")
	defer span.End()

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	run.Status = models.RunStatusPending

	ib := database.NewInsertBuilder().
		InsertInto(runTable).
		Cols("id", "status", "triggered_by", "connectors", "tenant_scope").
		Values(run.ID, run.Status, run.TriggeredBy, run.Connectors, run.TenantScope).
		Returning("id", "status", "triggered_by", "connectors", "tenant_scope", "result", "error", "started_at", "completed_at", "created_at", "updated_at")

	query, args := ib.Build()
	var created models.IngestionRun
	if err := r.db.GetContext(ctx, &created, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("triggered_by", run.TriggeredBy).Error("Failed to create ingestion run")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to create ingestion run: %v", err)
	}
	return &created, nil
}

// MarkRunning transitions a pending run to running. A run that is not
// pending anymore was claimed elsewhere and must not execute twice.
func (r *Repository) MarkRunning(ctx context.Context, runID string) error {
	ctx, span := tracing.StartSpan(ctx, "ingestionrun.Repository.MarkRunning")
	defer span.End()

	now := time.Now().UTC()
	ub := database.NewUpdateBuilder()
	ub.Update(runTable)
	ub.Set(
		ub.Assign("status", models.RunStatusRunning),
		ub.Assign("started_at", now),
		ub.Assign("updated_at", now),
	)
	ub.Where(
		ub.Equal("id", runID),
		ub.Equal("status", models.RunStatusPending),
	)

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", runID).Error("Failed to mark run running")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to mark run running: %v", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to mark run running: %v", err)
	}
	if affected == 0 {
		return httperror.NewHTTPErrorf(http.StatusConflict, "ingestion run %s is not pending", runID)
	}
	return nil
}

// Complete records the run result and transitions it to completed.
// Subscription-level failures live inside the result; they do not fail the
// run.
func (r *Repository) Complete(ctx context.Context, runID string, result []models.TenantIngestionResult) error {
	ctx, span := tracing.StartSpan(ctx, "ingestionrun.Repository.Complete")
	defer span.End()

	now := time.Now().UTC()
	ub := database.NewUpdateBuilder()
	ub.Update(runTable)
	ub.Set(
		ub.Assign("status", models.RunStatusCompleted),
		ub.Assign("result", database.NewJSONB(result)),
		ub.Assign("completed_at", now),
		ub.Assign("updated_at", now),
	)
	ub.Where(ub.Equal("id", runID))

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", runID).Error("Failed to complete ingestion run")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to complete ingestion run: %v", err)
	}
	return nil
}

// Fail transitions the run to failed with the orchestrator-level error.
func (r *Repository) Fail(ctx context.Context, runID string, runErr error) error {
	ctx, span := tracing.StartSpan(ctx, "ingestionrun.Repository.Fail")
	defer span.End()

	message := runErr.Error()
	now := time.Now().UTC()
	ub := database.NewUpdateBuilder()
	ub.Update(runTable)
	ub.Set(
		ub.Assign("status", models.RunStatusFailed),
		ub.Assign("error", message),
		ub.Assign("completed_at", now),
		ub.Assign("updated_at", now),
	)
	ub.Where(ub.Equal("id", runID))

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", runID).Error("Failed to mark ingestion run failed")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to mark ingestion run failed: %v", err)
	}
	return nil
}

// GetByID returns a run by id.
func (r *Repository) GetByID(ctx context.Context, runID string) (*models.IngestionRun, error) {
	ctx, span := tracing.StartSpan(ctx, "ingestionrun.Repository.GetByID")
	defer span.End()

	sb := runStruct.SelectFrom(runTable)
	sb.Where(sb.Equal("id", runID))

	query, args := sb.Build()
	var run models.IngestionRun
	if err := r.db.GetContext(ctx, &run, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "ingestion run %s not found", runID)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", runID).Error("Failed to get ingestion run")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get ingestion run: %v", err)
	}
	return &run, nil
}

// ListRecent returns the most recent runs.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]models.IngestionRun, error) {
	ctx, span := tracing.StartSpan(ctx, "ingestionrun.Repository.ListRecent")
	defer span.End()

	if limit <= 0 || limit > 100 {
		limit = 20
	}

	sb := runStruct.SelectFrom(runTable)
	sb.OrderBy("created_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var runs []models.IngestionRun
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list ingestion runs")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list ingestion runs: %v", err)
	}
	return runs, nil
}
