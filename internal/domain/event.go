package domain

import (
	"context"
	"time"
)

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Operation names the computation a request asks for.
type Operation string

const (
	OperationConvert Operation = "convert" // H→Q or Q→H depending on the series quantity
	OperationDaily   Operation = "daily"   // daily mean discharges
	OperationMonthly Operation = "monthly" // daily means reduced to monthly means
)

// Curve sources recorded on a request once its curves are resolved.
const (
	CurveSourceRequest  = "request"
	CurveSourceProvider = "provider"
	CurveSourceFailed   = "failed"
	CurveSourceNone     = "none"
)

// ConversionRequest is the message consumed from the source topic.
type ConversionRequest struct {
	ID              string           `json:"id"`
	Operation       Operation        `json:"operation"`
	InsertPivots    bool             `json:"insert_pivots,omitempty"`
	Series          *Series          `json:"series"`
	RatingCurves    []RatingCurve    `json:"rating_curves,omitempty"`
	CorrectionCurve *CorrectionCurve `json:"correction_curve,omitempty"`

	CurveSource string    `json:"-"`
	RawPayload  []byte    `json:"-"`
	ReceivedAt  time.Time `json:"-"`
}

// ConversionResult is the outcome of one request.
type ConversionResult struct {
	ID          string    `json:"id"`
	RequestID   string    `json:"request_id"`
	Operation   Operation `json:"operation"`
	CurveSource string    `json:"curve_source,omitempty"`
	Series      *Series   `json:"series"`
	ProcessedAt time.Time `json:"processed_at"`
}

// OutputEvent is the serialized form destined for the sink topic. Series is
// kept alongside the encoded value for sinks that persist observations.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
	Series  *Series
}
