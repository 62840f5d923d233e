package middleware

import (
	"time"

	"github.com/feesettle/backend/internal/domain/shared"
	"github.com/feesettle/backend/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// HTTPMeterName scopes the API's instruments
const HTTPMeterName = "feesettle.http"

// HTTPMetricsConfig selects where API metrics go. Meter wins over
// MeterProvider; with neither the middleware records nothing.
type HTTPMetricsConfig struct {
	MeterProvider *telemetry.Providers
	Meter         metric.Meter
	Logger        *zap.Logger
}

func (cfg HTTPMetricsConfig) meter() metric.Meter {
	if cfg.Meter != nil {
		return cfg.Meter
	}
	if cfg.MeterProvider != nil && cfg.MeterProvider.Enabled() {
		return cfg.MeterProvider.Meter(HTTPMeterName)
	}
	return nil
}

type apiMeter struct {
	requests   *telemetry.Counter[int64]
	rejections *telemetry.Counter[int64]
	latency    *telemetry.Histogram
	bodySize   *telemetry.Histogram
	inFlight   metric.Int64UpDownCounter
}

func newAPIMeter(meter metric.Meter) (*apiMeter, error) {
	m := &apiMeter{}
	var err error

	if m.requests, err = telemetry.NewCounter(meter, "http_server_request_total",
		"API requests by route and status", "{request}"); err != nil {
		return nil, err
	}
	if m.rejections, err = telemetry.NewCounter(meter, "http_server_rejection_total",
		"Requests refused by a fee rule, by error code", "{request}"); err != nil {
		return nil, err
	}
	if m.latency, err = telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_request_duration_seconds",
		Description: "API latency in seconds",
		Unit:        "s",
		Boundaries:  telemetry.HTTPDurationBuckets,
	}); err != nil {
		return nil, err
	}
	// settlement exports are the large responses
	if m.bodySize, err = telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_response_size_bytes",
		Description: "Response body size in bytes",
		Unit:        "By",
		Boundaries:  []float64{256, 1 << 10, 4 << 10, 16 << 10, 64 << 10, 256 << 10, 1 << 20, 4 << 20, 16 << 20},
	}); err != nil {
		return nil, err
	}
	if m.inFlight, err = meter.Int64UpDownCounter("http_server_active_requests",
		metric.WithDescription("Requests currently being served"),
		metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	return m, nil
}

// HTTPMetrics counts requests, latency, response size and in-flight
// requests per route, plus domain rejections per error code
func HTTPMetrics(cfg HTTPMetricsConfig) gin.HandlerFunc {
	meter := cfg.meter()
	if meter == nil {
		return passThrough
	}
	m, err := newAPIMeter(meter)
	if err != nil {
		if cfg.Logger != nil {
			cfg.Logger.Warn("HTTP metrics disabled", zap.Error(err))
		}
		return passThrough
	}
	return m.observe
}

func passThrough(c *gin.Context) {
	c.Next()
}

func (m *apiMeter) observe(c *gin.Context) {
	ctx := c.Request.Context()
	start := time.Now()

	m.inFlight.Add(ctx, 1)
	defer m.inFlight.Add(ctx, -1)
	c.Next()

	route := c.FullPath()
	if route == "" {
		route = "unknown"
	}
	attrs := []attribute.KeyValue{
		telemetry.AttrHTTPMethod.String(c.Request.Method),
		telemetry.AttrHTTPRoute.String(route),
	}

	m.requests.Inc(ctx, append(attrs, telemetry.AttrHTTPStatusCode.Int(c.Writer.Status()))...)
	m.latency.RecordDuration(ctx, time.Since(start), attrs...)
	if size := c.Writer.Size(); size > 0 {
		m.bodySize.Record(ctx, float64(size), attrs...)
	}
	for _, ginErr := range c.Errors {
		if de, ok := shared.AsDomainError(ginErr.Err); ok {
			m.rejections.Inc(ctx, append(attrs, telemetry.AttrErrorCode.String(de.Code))...)
		}
	}
}
