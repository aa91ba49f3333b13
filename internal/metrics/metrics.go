// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sosed_http_requests_total",
			Help: "Total number of HTTP requests processed.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sosed_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sosed_ws_active_connections",
			Help: "Number of open conversation websocket connections.",
		},
	)
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sosed_events_total",
			Help: "Domain events by name.",
		},
		[]string{"event"},
	)
)

// Domain event names.
const (
	EventItemCreated     = "item_created"
	EventItemArchived    = "item_archived"
	EventRequestCreated  = "request_created"
	EventRequestAccepted = "request_accepted"
	EventRequestDeclined = "request_declined"
	EventRequestComplete = "request_completed"
	EventMessageSent     = "message_sent"
	EventLoginFailed     = "login_failed"
	EventUserRegistered  = "user_registered"
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		eventsTotal,
	)
}

// Handler exposes the registered collectors.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(r.ResponseWriter).Hijack()
}

// Middleware counts requests by the ServeMux pattern that handled them.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// IncEvent counts a domain event.
func IncEvent(event string) {
	eventsTotal.WithLabelValues(event).Inc()
}

// IncWSActive records an opened websocket.
func IncWSActive() {
	wsActiveConnections.Inc()
}

// DecWSActive records a closed websocket.
func DecWSActive() {
	wsActiveConnections.Dec()
}
