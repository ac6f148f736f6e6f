package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	cartOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_operations_total",
			Help: "Total number of cart operations by outcome",
		},
		[]string{"op", "result"},
	)

	cartExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cart_expired_total",
			Help: "Total number of abandoned carts emptied by the expiry job",
		},
	)

	ordersCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Total number of orders created",
		},
		[]string{"payment_method"},
	)

	stockReservationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_reservation_failures_total",
			Help: "Total number of rejected stock reservations",
		},
		[]string{"reason"},
	)

	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Total number of payment webhook events received",
		},
		[]string{"type", "result"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(cartOperationsTotal)
	prometheus.MustRegister(cartExpiredTotal)
	prometheus.MustRegister(ordersCreatedTotal)
	prometheus.MustRegister(stockReservationFailuresTotal)
	prometheus.MustRegister(webhookEventsTotal)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

func RecordCartOperation(op, result string) {
	cartOperationsTotal.WithLabelValues(op, result).Inc()
}

func RecordCartExpired() {
	cartExpiredTotal.Inc()
}

func RecordOrderCreated(paymentMethod string) {
	ordersCreatedTotal.WithLabelValues(paymentMethod).Inc()
}

func RecordStockReservationFailure(reason string) {
	stockReservationFailuresTotal.WithLabelValues(reason).Inc()
}

func RecordWebhookEvent(eventType, result string) {
	webhookEventsTotal.WithLabelValues(eventType, result).Inc()
}
