package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMiddleware_BasicMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()

	gin.SetMode(gin.TestMode)
	r := gin.New()

	promMw := NewPrometheusMiddleware("test", registry)
	r.Use(promMw.Handler())

	r.GET("/seek/:time", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})
	r.GET("/error", func(c *gin.Context) {
		c.JSON(500, gin.H{"error": "test error"})
	})

	for _, path := range []string{"/seek/10", "/seek/20", "/error"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", path, nil)
		r.ServeHTTP(w, req)
	}

	// Пути с параметрами сводятся к шаблону маршрута
	count, err := testutil.GatherAndCount(registry, "test_http_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	err = testutil.GatherAndCompare(registry, strings.NewReader(`
# HELP test_http_request_errors_total Общее число запросов, завершившихся ошибкой (4xx/5xx).
# TYPE test_http_request_errors_total counter
test_http_request_errors_total{method="GET",path="/error",status="500"} 1
`), "test_http_request_errors_total")
	assert.NoError(t, err)
}

func TestPrometheusMiddleware_InflightRequests(t *testing.T) {
	registry := prometheus.NewRegistry()

	gin.SetMode(gin.TestMode)
	r := gin.New()

	promMw := NewPrometheusMiddleware("test", registry)
	r.Use(promMw.Handler())

	entered := make(chan struct{})
	release := make(chan struct{})
	r.GET("/slow", func(c *gin.Context) {
		close(entered)
		<-release
		c.JSON(200, gin.H{"ok": true})
	})

	done := make(chan struct{})
	go func() {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/slow", nil)
		r.ServeHTTP(w, req)
		close(done)
	}()

	<-entered
	assert.Equal(t, float64(1), testutil.ToFloat64(promMw.reqInflight))
	close(release)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("запрос не завершился")
	}
	assert.Equal(t, float64(0), testutil.ToFloat64(promMw.reqInflight))
}

func TestMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	promMw := NewPrometheusMiddleware("endpoint", registry)
	r.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(r)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/metrics", nil)
		r.ServeHTTP(w, req)
		require.Equal(t, 200, w.Code)
		if i == 1 {
			assert.Contains(t, w.Body.String(), `endpoint_http_request_duration_seconds_count{method="GET",path="/metrics",status="200"} 1`)
		}
	}
}

func TestRequestLogger_TraceID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	loggerMw := NewRequestLogger(nil)
	r.Use(loggerMw.Handler())

	var capturedTraceID string
	r.GET("/test", func(c *gin.Context) {
		traceID, exists := c.Get(TraceIDKey)
		require.True(t, exists, "trace_id должен быть в контексте")
		capturedTraceID = traceID.(string)
		c.JSON(200, gin.H{"trace_id": capturedTraceID})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
	assert.NotEmpty(t, capturedTraceID)
	assert.Equal(t, capturedTraceID, w.Header().Get("X-Trace-ID"))
	assert.Contains(t, w.Body.String(), capturedTraceID)
}
