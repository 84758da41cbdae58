package domain

import (
	"context"
	"log/slog"
)

// CurveSet holds the reference curves of one station.
type CurveSet struct {
	Rating     []RatingCurve    `json:"rating_curves"`
	Correction *CorrectionCurve `json:"correction_curve,omitempty"`
}

// Empty reports whether the set carries no rating curve.
func (cs CurveSet) Empty() bool {
	return len(cs.Rating) == 0
}

// CurveProvider looks up the reference curves of a station.
type CurveProvider interface {
	CurveSet(ctx context.Context, station string) (CurveSet, error)
}

// needsCurves reports whether the request can only be computed with rating
// curves. Daily and monthly means of a discharge series integrate directly.
func needsCurves(req ConversionRequest) bool {
	if req.Series == nil {
		return false
	}
	return req.Operation == OperationConvert || req.Series.Quantity == QuantityStage
}

// ResolveCurves fills in the curves of a request that did not carry any,
// using the series entity as station code. Lookup failures are logged and
// the request goes through uncurved, which yields undefined values rather
// than a dropped message.
func ResolveCurves(ctx context.Context, req ConversionRequest, provider CurveProvider, logger *slog.Logger) ConversionRequest {
	if len(req.RatingCurves) > 0 {
		req.CurveSource = CurveSourceRequest
		return req
	}
	if provider == nil || !needsCurves(req) {
		req.CurveSource = CurveSourceNone
		return req
	}

	set, err := provider.CurveSet(ctx, req.Series.Entity)
	if err != nil {
		logger.Warn("curve lookup failed",
			"request_id", req.ID,
			"station", req.Series.Entity,
			"error", err,
		)
		req.CurveSource = CurveSourceFailed
		return req
	}
	if set.Empty() {
		req.CurveSource = CurveSourceNone
		return req
	}

	req.RatingCurves = set.Rating
	if req.CorrectionCurve == nil {
		req.CorrectionCurve = set.Correction
	}
	req.CurveSource = CurveSourceProvider
	return req
}
