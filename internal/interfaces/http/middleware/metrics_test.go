package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/feesettle/backend/internal/domain/shared"
	"github.com/feesettle/backend/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func setupTestMeter(t *testing.T) (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = mp.Shutdown(context.Background())
	})
	return mp, reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetricByName(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestHTTPMetrics_Disabled(t *testing.T) {
	for name, cfg := range map[string]HTTPMetricsConfig{
		"no provider":       {},
		"disabled provider": {MeterProvider: &telemetry.Providers{}},
	} {
		t.Run(name, func(t *testing.T) {
			router := gin.New()
			router.Use(HTTPMetrics(cfg))
			router.GET("/api/v1/invoices", func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestHTTPMetrics_RecordsByRoute(t *testing.T) {
	mp, reader := setupTestMeter(t)

	router := gin.New()
	router.Use(HTTPMetrics(HTTPMetricsConfig{Meter: mp.Meter("test"), Logger: zap.NewNop()}))
	router.GET("/api/v1/invoices/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	for _, id := range []string{"a", "b", "c"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/invoices/"+id, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	rm := collectMetrics(t, reader)

	total := findMetricByName(rm, "http_server_request_total")
	require.NotNil(t, total)
	sum, ok := total.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	dp := sum.DataPoints[0]
	assert.Equal(t, int64(3), dp.Value)
	route, _ := dp.Attributes.Value(telemetry.AttrHTTPRoute)
	assert.Equal(t, "/api/v1/invoices/:id", route.AsString())
	status, _ := dp.Attributes.Value(telemetry.AttrHTTPStatusCode)
	assert.Equal(t, int64(http.StatusOK), status.AsInt64())

	latency := findMetricByName(rm, "http_server_request_duration_seconds")
	require.NotNil(t, latency)
	hist := latency.Data.(metricdata.Histogram[float64])
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(3), hist.DataPoints[0].Count)
	_, hasStatus := hist.DataPoints[0].Attributes.Value(telemetry.AttrHTTPStatusCode)
	assert.False(t, hasStatus)

	inFlight := findMetricByName(rm, "http_server_active_requests")
	require.NotNil(t, inFlight)
	assert.Equal(t, int64(0), inFlight.Data.(metricdata.Sum[int64]).DataPoints[0].Value)

	assert.Nil(t, findMetricByName(rm, "http_server_rejection_total"))
}

func TestHTTPMetrics_CountsRejectionsByCode(t *testing.T) {
	mp, reader := setupTestMeter(t)

	router := gin.New()
	router.Use(HTTPMetrics(HTTPMetricsConfig{Meter: mp.Meter("test")}))
	router.POST("/api/v1/invoices/:id/payments", func(c *gin.Context) {
		_ = c.Error(shared.NewDomainError(shared.CodeOverpayment, "payment exceeds balance"))
		c.Status(http.StatusUnprocessableEntity)
	})
	router.GET("/api/v1/health", func(c *gin.Context) {
		_ = c.Error(errors.New("redis down"))
		c.Status(http.StatusServiceUnavailable)
	})

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodPost, "/api/v1/invoices/x/payments", nil),
		httptest.NewRequest(http.MethodPost, "/api/v1/invoices/y/payments", nil),
		httptest.NewRequest(http.MethodGet, "/api/v1/health", nil),
	} {
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	rejections := findMetricByName(collectMetrics(t, reader), "http_server_rejection_total")
	require.NotNil(t, rejections)
	sum := rejections.Data.(metricdata.Sum[int64])
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)
	code, _ := sum.DataPoints[0].Attributes.Value(telemetry.AttrErrorCode)
	assert.Equal(t, shared.CodeOverpayment, code.AsString())
}

func TestHTTPMetrics_UnmatchedRoute(t *testing.T) {
	mp, reader := setupTestMeter(t)

	router := gin.New()
	router.Use(HTTPMetrics(HTTPMetricsConfig{Meter: mp.Meter("test")}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	total := findMetricByName(collectMetrics(t, reader), "http_server_request_total")
	require.NotNil(t, total)
	sum := total.Data.(metricdata.Sum[int64])
	require.Len(t, sum.DataPoints, 1)
	route, _ := sum.DataPoints[0].Attributes.Value(telemetry.AttrHTTPRoute)
	assert.Equal(t, "unknown", route.AsString())
}
