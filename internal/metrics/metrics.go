// Package metrics exposes Prometheus collectors for HTTP and database calls.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"path", "method", "status_code"})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"path", "method", "status_code"})

	dbRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_request_duration_seconds",
		Help:    "Duration of database requests.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
	}, []string{"collection", "method"})

	dbRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "db_requests_total",
		Help: "Total number of database requests.",
	}, []string{"collection", "method"})

	imagesStored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "images_stored_total",
		Help: "Images written to or removed from storage.",
	}, []string{"folder", "op"})
)

// ObserveHTTPRequest records one served request.
func ObserveHTTPRequest(path, method, statusCode string, duration time.Duration) {
	httpRequestDuration.WithLabelValues(path, method, statusCode).Observe(duration.Seconds())
	httpRequestsTotal.WithLabelValues(path, method, statusCode).Inc()
}

// ObserveDBRequest records one database round trip.
func ObserveDBRequest(collection, method string, duration time.Duration) {
	dbRequestDuration.WithLabelValues(collection, method).Observe(duration.Seconds())
	dbRequestsTotal.WithLabelValues(collection, method).Inc()
}

// ObserveImage counts image writes ("put") and removals ("delete").
func ObserveImage(folder, op string) {
	imagesStored.WithLabelValues(folder, op).Inc()
}

// Middleware records HTTP metrics labelled by route template, so ids in
// the path do not explode label cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		ObserveHTTPRequest(path, c.Request.Method, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
