// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// Metrics instruments HTTP traffic with Prometheus. Labels stay bounded:
// the route label is the registered Gin route (e.g. /api/v1/dashboard/conversations/:id)
// and requests that matched no route share the single "unmatched" route, so
// scanners probing random URLs cannot grow the series count. The surface
// label groups routes by audience (widget, dashboard, admin, auth, billing).
package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const unmatchedPath = "unmatched"

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by surface, route, and status.",
		},
		[]string{"surface", "method", "path", "status"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"surface", "method", "path"},
	)

	httpInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "In-flight HTTP requests by surface.",
		},
		[]string{"surface"},
	)

	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response sizes in bytes.",
			Buckets: prometheus.ExponentialBuckets(128, 4, 8), // 128B..2MiB
		},
		[]string{"surface", "method"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize)
}

var surfaces = []string{"widget", "dashboard", "admin", "auth", "billing"}

// surfaceOf maps a request path to its audience.
func surfaceOf(p string) string {
	for _, s := range surfaces {
		if strings.Contains(p, "/"+s+"/") || strings.HasSuffix(p, "/"+s) {
			return s
		}
	}
	if strings.HasSuffix(p, "/me") {
		return "auth"
	}
	return "other"
}

// Metrics records request count, latency, in-flight requests, and response
// size. Expose the registry with promhttp.Handler().
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		surface := surfaceOf(c.Request.URL.Path)
		inflight := httpInflight.WithLabelValues(surface)
		inflight.Inc()
		defer inflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = unmatchedPath
		}
		method := c.Request.Method
		httpReqs.WithLabelValues(surface, method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(surface, method, path).Observe(time.Since(start).Seconds())
		// Size is -1 when nothing was written.
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(surface, method).Observe(float64(size))
		}
	}
}
