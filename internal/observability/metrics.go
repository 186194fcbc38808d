package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_sync_http_requests_total",
			Help: "Total number of HTTP requests processed by the sync service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_sync_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_sync_ws_active_connections",
			Help: "Number of active websocket connections on the hub.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_sync_ws_events_total",
			Help: "Total number of websocket events handled by the hub.",
		},
		[]string{"kind"},
	)
	clientConnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_sync_client_connects_total",
			Help: "Total number of successful client channel connections.",
		},
	)
	clientReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_sync_client_reconnects_total",
			Help: "Total number of client channel reconnections.",
		},
	)
	clientEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_sync_client_events_total",
			Help: "Total number of inbound events dispatched by the client channel.",
		},
		[]string{"kind"},
	)
	bufferedEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_sync_buffered_events_total",
			Help: "Events buffered because they referenced a not-yet-known message id.",
		},
		[]string{"kind"},
	)
	replayedEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_sync_replayed_events_total",
			Help: "Buffered events replayed after their message id materialized.",
		},
		[]string{"kind"},
	)
	notificationIntentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_sync_notification_intents_total",
			Help: "Total number of notification intents produced.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_sync_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		clientConnectsTotal,
		clientReconnectsTotal,
		clientEventsTotal,
		bufferedEventsTotal,
		replayedEventsTotal,
		notificationIntentsTotal,
		amqpPublishErrorsTotal,
	)
}

// HTTPMetricsMiddleware records request counts and latencies per route.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncWSEvent(kind string) {
	wsEventsTotal.WithLabelValues(kind).Inc()
}

func IncClientConnect() {
	clientConnectsTotal.Inc()
}

func IncClientReconnect() {
	clientReconnectsTotal.Inc()
}

func IncClientEvent(kind string) {
	clientEventsTotal.WithLabelValues(kind).Inc()
}

func IncBufferedEvent(kind string) {
	bufferedEventsTotal.WithLabelValues(kind).Inc()
}

func IncReplayedEvent(kind string) {
	replayedEventsTotal.WithLabelValues(kind).Inc()
}

func IncNotificationIntent() {
	notificationIntentsTotal.Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
