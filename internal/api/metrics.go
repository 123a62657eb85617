package api

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmerrifield20/AyuTrack/internal/ledger"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ayutrack_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ayutrack_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	ledgerEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ayutrack_ledger_entries",
		Help: "Number of committed ledger entries.",
	})

	ledgerAppendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ayutrack_ledger_appends_total",
		Help: "Ledger append attempts by outcome.",
	}, []string{"result"})

	chainIntegrity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ayutrack_chain_integrity",
		Help: "1 when the last background integrity check passed, 0 otherwise.",
	})

	integrityChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ayutrack_integrity_checks_total",
		Help: "Background chain integrity checks by outcome.",
	}, []string{"result"})

	webhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ayutrack_webhook_deliveries_total",
		Help: "Webhook delivery attempts by outcome.",
	}, []string{"result"})

	rateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ayutrack_rate_limited_total",
		Help: "Requests refused by the rate limiter, by budget.",
	}, []string{"budget"})
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

		requestsTotal.WithLabelValues(method, path, status).Inc()
		requestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// ObserveCommit is a ledger commit hook that records a successful append.
func ObserveCommit(e ledger.Entry) {
	ledgerAppendsTotal.WithLabelValues("committed").Inc()
	ledgerEntries.Set(float64(e.Index + 1))
}

// ObserveReject is a ledger reject hook that records a failed append by cause.
func ObserveReject(err error) {
	ledgerAppendsTotal.WithLabelValues(rejectReason(err)).Inc()
}

// SetLedgerEntries sets the entry gauge, e.g. after loading a persisted chain.
func SetLedgerEntries(n int) {
	ledgerEntries.Set(float64(n))
}

// ObserveIntegrity records the outcome of a background integrity check.
func ObserveIntegrity(ok bool) {
	if ok {
		chainIntegrity.Set(1)
		integrityChecksTotal.WithLabelValues("pass").Inc()
		return
	}
	chainIntegrity.Set(0)
	integrityChecksTotal.WithLabelValues("fail").Inc()
}

// ObserveWebhookDelivery records one webhook delivery attempt.
func ObserveWebhookDelivery(success bool) {
	if success {
		webhookDeliveriesTotal.WithLabelValues("success").Inc()
		return
	}
	webhookDeliveriesTotal.WithLabelValues("failure").Inc()
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInvalidKey):
		return "invalid_key"
	case errors.Is(err, ledger.ErrConsensusNotReached):
		return "no_consensus"
	case errors.Is(err, ledger.ErrInvalidRecord):
		return "invalid_record"
	case errors.Is(err, ledger.ErrPersistence):
		return "persistence"
	default:
		return "error"
	}
}
