package pipeline

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/couchcryptid/hydrometry-etl/internal/domain"
	"github.com/couchcryptid/hydrometry-etl/internal/observability"
)

// HydroTransformer parses a conversion request, resolves its curves, runs
// the requested operation and serializes the result.
type HydroTransformer struct {
	curves       domain.CurveProvider
	insertPivots bool
	metrics      *observability.Metrics
	logger       *slog.Logger
}

// NewTransformer creates a HydroTransformer. A nil provider limits requests
// to the curves they carry inline.
func NewTransformer(curves domain.CurveProvider, insertPivots bool, metrics *observability.Metrics, logger *slog.Logger) *HydroTransformer {
	return &HydroTransformer{
		curves:       curves,
		insertPivots: insertPivots,
		metrics:      metrics,
		logger:       logger,
	}
}

func (t *HydroTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	req, err := domain.ParseRequest(raw)
	if err != nil {
		return domain.OutputEvent{}, err
	}
	req = domain.ResolveCurves(ctx, req, t.curves, t.logger)

	res, err := domain.ExecuteRequest(req, t.insertPivots)
	if err != nil {
		return domain.OutputEvent{}, err
	}
	t.recordObservations(res)

	t.logger.Debug("request converted",
		"request_id", req.ID,
		"operation", req.Operation,
		"entity", req.Series.Entity,
		"curve_source", req.CurveSource,
		"observations", res.Series.Len(),
	)
	return domain.SerializeResult(res)
}

func (t *HydroTransformer) recordObservations(res domain.ConversionResult) {
	if res.Series == nil {
		return
	}
	counts := make(map[int]int)
	for _, o := range res.Series.Observations() {
		counts[o.Continuity]++
	}
	for continuity, n := range counts {
		t.metrics.ObservationsProduced.
			WithLabelValues(string(res.Operation), strconv.Itoa(continuity)).
			Add(float64(n))
	}
}
