package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/items/:id", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(traceIDKey))
	})
	return r
}

func TestLoggingMiddleware_TraceID(t *testing.T) {
	r := newRouter(LoggingMiddleware())

	tests := []struct {
		name   string
		header map[string]string
		want   string
	}{
		{
			name:   "traceparent",
			header: map[string]string{TraceParentHeader: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"},
			want:   "4bf92f3577b34da6a3ce929d0e0e4736",
		},
		{
			name:   "x-trace-id",
			header: map[string]string{TraceIDHeader: "abc123"},
			want:   "abc123",
		},
		{
			name:   "malformed traceparent falls through",
			header: map[string]string{TraceParentHeader: "garbage", TraceIDHeader: "fallback"},
			want:   "fallback",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/items/1", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Body.String())
			assert.Equal(t, tt.want, w.Header().Get(TraceIDHeader))
		})
	}
}

func TestLoggingMiddleware_GeneratesTraceID(t *testing.T) {
	r := newRouter(LoggingMiddleware())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/1", nil))

	assert.Len(t, w.Header().Get(TraceIDHeader), 32)
}

func TestLoggingMiddleware_AttachesLogger(t *testing.T) {
	var got *zerolog.Logger
	r := gin.New()
	r.Use(LoggingMiddleware())
	r.GET("/", func(c *gin.Context) {
		got = zerolog.Ctx(c.Request.Context())
		c.Status(http.StatusNoContent)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotNil(t, got)
	assert.NotEqual(t, zerolog.Disabled, got.GetLevel())
}

func TestPrometheusMiddleware_LabelsByRoute(t *testing.T) {
	r := newRouter(PrometheusMiddleware())

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/items/:id", "200"))
	for _, id := range []string{"1", "2", "3"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/"+id, nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/items/:id", "200"))
	assert.Equal(t, 3.0, after-before)
	assert.GreaterOrEqual(t, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "404")), 1.0)
}

func TestIPRateLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewIPRateLimiter(1, 2)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"), "burst exhausted")
	assert.True(t, l.Allow("10.0.0.2"), "buckets are per ip")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("10.0.0.1"), "refilled")

	now = now.Add(limiterIdleTTL + 2*limiterSweepInterval)
	l.Allow("10.0.0.3")
	l.mu.Lock()
	_, kept := l.buckets["10.0.0.1"]
	l.mu.Unlock()
	assert.False(t, kept, "idle buckets are swept")
}

func TestRateLimit_Rejects(t *testing.T) {
	r := newRouter(RateLimit(NewIPRateLimiter(1, 1)))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/1", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/1", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestStartSpan_NoopProvider(t *testing.T) {
	ctx, span := StartSpan(t.Context(), "test")
	defer span.End()
	assert.NotNil(t, ctx)
}
