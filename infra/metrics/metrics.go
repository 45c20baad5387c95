package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
// Methods are safe on a nil receiver.
type Metrics struct {
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	RateLimited       prometheus.Counter
	PaymentsInitiated *prometheus.CounterVec
	PaymentCallbacks  *prometheus.CounterVec
	OrdersCreated     prometheus.Counter
	ReconcileChecks   *prometheus.CounterVec
	EmailsSent        *prometheus.CounterVec
}

// New creates and registers all metrics on reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dukapi_http_requests_total",
			Help: "HTTP requests by method, route pattern and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dukapi_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route pattern",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "dukapi_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}),
		PaymentsInitiated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dukapi_payments_initiated_total",
			Help: "STK push requests by result",
		}, []string{"result"}),
		PaymentCallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dukapi_payment_callbacks_total",
			Help: "Payment results applied by source and outcome",
		}, []string{"source", "outcome"}),
		OrdersCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "dukapi_orders_created_total",
			Help: "Orders committed",
		}),
		ReconcileChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dukapi_reconcile_checks_total",
			Help: "Stale transactions checked by the reconciler by outcome",
		}, []string{"outcome"}),
		EmailsSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dukapi_emails_total",
			Help: "Notification emails by kind and result",
		}, []string{"kind", "result"}),
	}
}

func (m *Metrics) ObserveRequest(method, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

func (m *Metrics) IncrementRateLimited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}

func (m *Metrics) IncrementPayment(result string) {
	if m == nil {
		return
	}
	m.PaymentsInitiated.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementCallback(source, outcome string) {
	if m == nil {
		return
	}
	m.PaymentCallbacks.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) IncrementOrders() {
	if m == nil {
		return
	}
	m.OrdersCreated.Inc()
}

func (m *Metrics) IncrementReconcile(outcome string) {
	if m == nil {
		return
	}
	m.ReconcileChecks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementEmail(kind string, err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.EmailsSent.WithLabelValues(kind, result).Inc()
}
