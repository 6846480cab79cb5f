// Package curated fans normalized connector records out to the curated
// postgres tables.
package curated

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

type resourceStore interface {
	UpsertBatch(ctx context.Context, resources []models.Resource) error
}

type costStore interface {
	UpsertBatch(ctx context.Context, costs []models.CostDaily) error
}

type recommendationStore interface {
	UpsertBatch(ctx context.Context, recommendations []models.Recommendation) error
}

type metricSummaryStore interface {
	UpsertBatch(ctx context.Context, summaries []models.MetricSummary) error
}

// Writer splits a connector's record batch by concrete type and upserts
// each group through its repository.
type Writer struct {
	resources       resourceStore
	costs           costStore
	recommendations recommendationStore
	metricSummaries metricSummaryStore
	logger          ectologger.Logger
}

// NewWriter creates a curated writer.
func NewWriter(
	resources resourceStore,
	costs costStore,
	recommendations recommendationStore,
	metricSummaries metricSummaryStore,
	logger ectologger.Logger,
) *Writer {
	return &Writer{
		resources:       resources,
		costs:           costs,
		recommendations: recommendations,
		metricSummaries: metricSummaries,
		logger:          logger,
	}
}

// Write upserts the records and returns counts by record kind. Records of
// an unknown type are logged and skipped rather than failing the batch.
func (w *Writer) Write(ctx context.Context, connector string, records []models.Record) (map[string]int, error) {
	ctx, span := tracing.StartSpan(ctx, "curated.Writer.Write")
	defer span.End()

	var (
		resources       []models.Resource
		costs           []models.CostDaily
		recommendations []models.Recommendation
		metricSummaries []models.MetricSummary
		skipped         int
	)

	for _, record := range records {
		switch value := record.(type) {
		case models.Resource:
			resources = append(resources, value)
		case models.CostDaily:
			costs = append(costs, value)
		case models.Recommendation:
			recommendations = append(recommendations, value)
		case models.MetricSummary:
			metricSummaries = append(metricSummaries, value)
		default:
			skipped++
			w.logger.WithContext(ctx).
				WithField("connector", connector).
				WithField("record_type", fmt.Sprintf("%T", record)).
				Warn("skipping record of unknown type")
		}
	}

	counts := map[string]int{}

	if len(resources) > 0 {
		if err := w.resources.UpsertBatch(ctx, resources); err != nil {
			return counts, err
		}
		counts[models.Resource{}.RecordKind()] = len(resources)
	}
	if len(costs) > 0 {
		if err := w.costs.UpsertBatch(ctx, costs); err != nil {
			return counts, err
		}
		counts[models.CostDaily{}.RecordKind()] = len(costs)
	}
	if len(recommendations) > 0 {
		if err := w.recommendations.UpsertBatch(ctx, recommendations); err != nil {
			return counts, err
		}
		counts[models.Recommendation{}.RecordKind()] = len(recommendations)
	}
	if len(metricSummaries) > 0 {
		if err := w.metricSummaries.UpsertBatch(ctx, metricSummaries); err != nil {
			return counts, err
		}
		counts[models.MetricSummary{}.RecordKind()] = len(metricSummaries)
	}

	total := 0
	for _, count := range counts {
		total += count
	}
	metrics.RecordsWritten.WithLabelValues(connector).Add(float64(total))

	if skipped > 0 {
		w.logger.WithContext(ctx).
			WithField("connector", connector).
			WithField("skipped", skipped).
			Warn("some records were not written")
	}

	return counts, nil
}
