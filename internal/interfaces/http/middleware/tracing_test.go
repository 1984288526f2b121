package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newTracedRouter(t *testing.T) (*gin.Engine, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	router := gin.New()
	router.Use(
		RequestID(),
		TracingWithConfig(TracingConfig{ServiceName: "catalog-cache", Enabled: true, TracerProvider: provider}),
		TracingAttributeInjector(),
		SpanErrorMarker(),
	)
	router.GET("/api/v1/catalog/products/:code", func(c *gin.Context) {
		if c.Param("code") == "missing" {
			c.Status(http.StatusNotFound)
			return
		}
		c.Status(http.StatusOK)
	})
	router.POST("/api/v1/catalog/merge", func(c *gin.Context) {
		c.Status(http.StatusServiceUnavailable)
	})
	return router, recorder
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracing_RecordsRequestSpan(t *testing.T) {
	router, recorder := newTracedRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/catalog/products/P-1", nil)
	req.Header.Set(RequestIDHeader, "upstream-7")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind())
	assert.Contains(t, spans[0].Name(), "/api/v1/catalog/products/:code")
	id, ok := spanAttr(spans[0], "request_id")
	require.True(t, ok)
	assert.Equal(t, "upstream-7", id.AsString())
	assert.NotEqual(t, codes.Error, spans[0].Status().Code)
}

func TestSpanErrorMarker(t *testing.T) {
	router, recorder := newTracedRouter(t)

	tests := []struct {
		method  string
		path    string
		status  int
		message string
	}{
		{http.MethodGet, "/api/v1/catalog/products/missing", http.StatusNotFound, "Not Found"},
		{http.MethodPost, "/api/v1/catalog/merge", http.StatusServiceUnavailable, ""},
	}
	for i, tt := range tests {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
		assert.Equal(t, tt.status, w.Code)

		spans := recorder.Ended()
		require.Len(t, spans, i+1)
		span := spans[i]
		assert.Equal(t, codes.Error, span.Status().Code)
		if tt.message != "" {
			assert.Equal(t, tt.message, span.Status().Description)
		}
		status, ok := spanAttr(span, "http.status_code")
		require.True(t, ok)
		assert.Equal(t, int64(tt.status), status.AsInt64())
	}
}

func TestTracingWithConfig_Disabled(t *testing.T) {
	router := gin.New()
	router.Use(TracingWithConfig(TracingConfig{Enabled: false}), SpanErrorMarker())
	router.GET("/ok", func(c *gin.Context) {
		assert.False(t, trace.SpanFromContext(c.Request.Context()).IsRecording())
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
