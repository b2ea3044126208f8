package handler

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	notaryRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notary_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	notaryRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notary_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	notaryChainHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "notary_chain_height",
		Help: "Height of the most recently committed record.",
	})

	notaryRecordsAppendedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notary_records_appended_total",
		Help: "Total records committed to the chain, genesis included.",
	})

	notarySubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notary_submissions_total",
		Help: "Total star submissions by outcome.",
	}, []string{"result"})

	notaryChainViolations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "notary_chain_violations",
		Help: "Invalid records found by the most recent background chain audit.",
	})

	notaryChainAuditsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notary_chain_audits_total",
		Help: "Total background chain audits by result.",
	}, []string{"result"})

	notaryDecodeSkipsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notary_decode_skips_total",
		Help: "Total records skipped by owner queries because their body could not be decoded.",
	})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		notaryRequestsTotal.WithLabelValues(method, path, status).Inc()
		notaryRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// Metrics reports notary service events to the Prometheus collectors above.
// It satisfies notary.Metrics.
type Metrics struct{}

// RecordSubmission counts a submission with the given outcome.
func (Metrics) RecordSubmission(result string) {
	notarySubmissionsTotal.WithLabelValues(result).Inc()
}

// chainHeightMark keeps notary_chain_height monotonic: appends report after
// the chain lock is released, so they can arrive out of order.
var chainHeightMark = struct {
	sync.Mutex
	height int
	set    bool
}{}

// RecordAppend counts a committed record and moves the height gauge up to
// height. A report lower than the current mark leaves the gauge unchanged.
func (Metrics) RecordAppend(height int) {
	notaryRecordsAppendedTotal.Inc()

	chainHeightMark.Lock()
	defer chainHeightMark.Unlock()
	if chainHeightMark.set && height <= chainHeightMark.height {
		return
	}
	chainHeightMark.height, chainHeightMark.set = height, true
	notaryChainHeight.Set(float64(height))
}

// RecordDecodeSkip counts a record skipped during an owner query.
func (Metrics) RecordDecodeSkip() {
	notaryDecodeSkipsTotal.Inc()
}

// RecordAudit records the outcome of a background chain audit.
func (Metrics) RecordAudit(violations int, err error) {
	switch {
	case err != nil:
		notaryChainAuditsTotal.WithLabelValues("error").Inc()
		return
	case violations > 0:
		notaryChainAuditsTotal.WithLabelValues("compromised").Inc()
	default:
		notaryChainAuditsTotal.WithLabelValues("ok").Inc()
	}
	notaryChainViolations.Set(float64(violations))
}
