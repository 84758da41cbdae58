// Package curves fetches station rating and correction curves from the
// hydrometric reference-data API.
package curves

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/hydrometry-etl/internal/domain"
	"github.com/couchcryptid/hydrometry-etl/internal/observability"
)

// Client implements domain.CurveProvider over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a reference-data client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: metrics,
		logger:  logger,
	}
}

// CurveSet returns the curves of station. An unknown station yields an
// empty set, not an error.
func (c *Client) CurveSet(ctx context.Context, station string) (domain.CurveSet, error) {
	u := fmt.Sprintf("%s/stations/%s/curves", c.baseURL, url.PathEscape(station))

	start := time.Now()
	set, err := c.doRequest(ctx, u)
	c.metrics.CurveAPIDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		c.metrics.CurveRequests.WithLabelValues("error").Inc()
		return domain.CurveSet{}, err
	case set.Empty():
		c.metrics.CurveRequests.WithLabelValues("empty").Inc()
		c.logger.Debug("no curves for station", "station", station)
	default:
		c.metrics.CurveRequests.WithLabelValues("success").Inc()
	}
	return set, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (domain.CurveSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.CurveSet{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.CurveSet{}, fmt.Errorf("curve request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.CurveSet{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.CurveSet{}, fmt.Errorf("curves API error: status %d: %s", resp.StatusCode, body)
	}

	var payload response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.CurveSet{}, fmt.Errorf("decode response: %w", err)
	}
	return payload.curveSet()
}

// response is the reference-data API payload.
type response struct {
	Station         string                  `json:"station"`
	RatingCurves    []domain.RatingCurve    `json:"rating_curves"`
	CorrectionCurve *domain.CorrectionCurve `json:"correction_curve"`
}

func (r response) curveSet() (domain.CurveSet, error) {
	for i := range r.RatingCurves {
		if err := r.RatingCurves[i].Validate(); err != nil {
			return domain.CurveSet{}, fmt.Errorf("station %s: %w", r.Station, err)
		}
	}
	set := domain.CurveSet{Rating: r.RatingCurves}
	if cc := r.CorrectionCurve; cc != nil {
		set.Correction = domain.NewCorrectionCurve(cc.Entity, cc.Pivots)
	}
	return set, nil
}
