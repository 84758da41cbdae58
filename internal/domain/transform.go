package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ParseRequest deserializes a RawEvent's value into a ConversionRequest.
// A missing operation defaults to convert; a missing ID is derived from the
// payload so that replays of the same message keep the same identity.
func ParseRequest(raw RawEvent) (ConversionRequest, error) {
	var req ConversionRequest
	if err := json.Unmarshal(raw.Value, &req); err != nil {
		return ConversionRequest{}, fmt.Errorf("parse request: %w", err)
	}
	if req.Series == nil {
		return ConversionRequest{}, ErrMissingSeries
	}

	op, err := normalizeOperation(req.Operation)
	if err != nil {
		return ConversionRequest{}, err
	}
	req.Operation = op

	for i := range req.RatingCurves {
		if err := req.RatingCurves[i].Validate(); err != nil {
			return ConversionRequest{}, fmt.Errorf("parse request: %w", err)
		}
	}
	if req.CorrectionCurve != nil {
		req.CorrectionCurve = NewCorrectionCurve(req.CorrectionCurve.Entity, req.CorrectionCurve.Pivots)
	}

	if req.ID == "" {
		sum := sha256.Sum256(raw.Value)
		req.ID = hex.EncodeToString(sum[:8])
	}
	req.RawPayload = raw.Value
	req.ReceivedAt = raw.Timestamp
	return req, nil
}

// normalizeOperation accepts operation names case-insensitively.
func normalizeOperation(op Operation) (Operation, error) {
	switch Operation(strings.ToLower(strings.TrimSpace(string(op)))) {
	case "", OperationConvert:
		return OperationConvert, nil
	case OperationDaily:
		return OperationDaily, nil
	case OperationMonthly:
		return OperationMonthly, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownOperation, op)
	}
}

// ExecuteRequest runs the requested computation. insertPivots is the
// service-wide default, OR-ed with the request's own flag.
func ExecuteRequest(req ConversionRequest, insertPivots bool) (ConversionResult, error) {
	var (
		out *Series
		err error
	)
	switch req.Operation {
	case OperationConvert:
		out, err = ConvertSeries(req.Series, req.RatingCurves,
			WithCorrection(req.CorrectionCurve),
			WithPivotInsertion(insertPivots || req.InsertPivots),
		)
	case OperationDaily:
		out, err = DailyMeans(req.Series, req.RatingCurves, req.CorrectionCurve)
	case OperationMonthly:
		out, err = DailyMeans(req.Series, req.RatingCurves, req.CorrectionCurve)
		if err == nil {
			out, err = MonthlyMeans(out)
		}
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownOperation, req.Operation)
	}
	if err != nil {
		return ConversionResult{}, fmt.Errorf("request %s: %w", req.ID, err)
	}

	return ConversionResult{
		ID:          generateID(req.ID, req.Operation, out),
		RequestID:   req.ID,
		Operation:   req.Operation,
		CurveSource: req.CurveSource,
		Series:      out,
		ProcessedAt: clock.Now(),
	}, nil
}

// generateID produces a deterministic ID from the request ID, the operation
// and the bounds of the produced series. Reprocessing the same request yields
// the same ID, which keeps downstream upserts idempotent.
func generateID(requestID string, op Operation, s *Series) string {
	var first, last string
	if n := s.Len(); n > 0 {
		first = s.At(0).Time.UTC().Format(time.RFC3339)
		last = s.At(n - 1).Time.UTC().Format(time.RFC3339)
	}
	var entity, quantity string
	if s != nil {
		entity, quantity = s.Entity, string(s.Quantity)
	}
	input := fmt.Sprintf("%s|%s|%s|%s|%s|%s", requestID, op, entity, quantity, first, last)
	hash := sha256.Sum256([]byte(input))
	short := hex.EncodeToString(hash[:8])
	if op == "" {
		return short
	}
	return string(op) + "-" + short
}

// SerializeResult encodes a ConversionResult for the sink topic.
func SerializeResult(r ConversionResult) (OutputEvent, error) {
	value, err := json.Marshal(r)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize result: %w", err)
	}
	headers := map[string]string{
		"operation":    string(r.Operation),
		"request_id":   r.RequestID,
		"processed_at": r.ProcessedAt.UTC().Format(time.RFC3339),
	}
	if r.Series != nil {
		headers["quantity"] = string(r.Series.Quantity)
	}
	return OutputEvent{
		Key:     []byte(r.ID),
		Value:   value,
		Headers: headers,
		Series:  r.Series,
	}, nil
}
