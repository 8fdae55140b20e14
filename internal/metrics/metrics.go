// Package metrics exposes Prometheus instrumentation shared by the MCP
// client and the sandbox server.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mcpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcp_client_requests_total",
		Help: "Total JSON-RPC requests by method and outcome.",
	}, []string{"method", "outcome"})

	mcpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mcp_client_request_duration_seconds",
		Help:    "JSON-RPC request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	mcpTokensIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mcp_client_tokens_issued_total",
		Help: "Total JWT credentials minted by the client.",
	})

	mcpStreamEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcp_client_stream_events_total",
		Help: "Total server-sent events received, by handling result.",
	}, []string{"result"})

	stubRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcp_stub_requests_total",
		Help: "Total HTTP requests handled by the sandbox server.",
	}, []string{"method", "path", "status"})

	stubRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mcp_stub_request_duration_seconds",
		Help:    "Sandbox server request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// RecordRequest records one JSON-RPC call. outcome is "ok", "remote_error",
// "transport_error", or "timeout".
func RecordRequest(method, outcome string, duration time.Duration) {
	mcpRequestsTotal.WithLabelValues(method, outcome).Inc()
	mcpRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordTokenIssued records one credential issuance.
func RecordTokenIssued() {
	mcpTokensIssued.Inc()
}

// RecordStreamEvent records one received SSE frame.
func RecordStreamEvent(ok bool) {
	if ok {
		mcpStreamEvents.WithLabelValues("parsed").Inc()
	} else {
		mcpStreamEvents.WithLabelValues("skipped").Inc()
	}
}

// PrometheusMiddleware returns a Gin middleware recording per-request
// metrics for the sandbox server.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		stubRequestsTotal.WithLabelValues(method, path, status).Inc()
		stubRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler serving the Prometheus registry.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
