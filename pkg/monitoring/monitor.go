package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	SessionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_sessions_total",
			Help: "Assessment sessions by flow and final state",
		},
		[]string{"flow", "state"},
	)

	TimerExpiryCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_timer_expiries_total",
			Help: "Countdown expiries by timer mode",
		},
		[]string{"mode"},
	)

	StaleResponseCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "assessment_stale_responses_total",
			Help: "Async results discarded because the target session was superseded",
		},
	)

	ProgressSyncFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "progress_sync_failures_total",
			Help: "Failed progress write-through attempts to the upstream gateway",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(SessionCounter)
	prometheus.MustRegister(TimerExpiryCounter)
	prometheus.MustRegister(StaleResponseCounter)
	prometheus.MustRegister(ProgressSyncFailures)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
