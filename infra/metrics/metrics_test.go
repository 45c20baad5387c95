package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRequest("GET", "/products", 200, 10*time.Millisecond)
	m.ObserveRequest("GET", "/products", 200, 20*time.Millisecond)
	m.IncrementCallback("callback", "accepted")
	m.IncrementEmail("verification", errors.New("smtp down"))
	m.IncrementOrders()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/products", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PaymentCallbacks.WithLabelValues("callback", "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailsSent.WithLabelValues("verification", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrdersCreated))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("GET", "/", 200, time.Millisecond)
		m.IncrementRateLimited()
		m.IncrementPayment("ok")
		m.IncrementCallback("query", "rejected")
		m.IncrementOrders()
		m.IncrementReconcile("unchanged")
		m.IncrementEmail("reset", nil)
	})
}
