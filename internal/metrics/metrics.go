package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"paykit/internal/payments"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	gatherer        prometheus.Gatherer
	statusChanges   *prometheus.CounterVec
	capturedAmount  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in
// tests; main uses the default registry.
func New(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	m := &Metrics{
		gatherer: gatherer,
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paykit",
			Name:      "payment_status_changes_total",
			Help:      "Payment status transitions by variant and new status.",
		}, []string{"variant", "status"}),
		capturedAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paykit",
			Name:      "payment_confirmed_amount_total",
			Help:      "Sum of captured amounts of payments reaching confirmed, in major units.",
		}, []string{"variant", "currency"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "paykit",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),
	}
	reg.MustRegister(m.statusChanges, m.capturedAmount, m.requestDuration)
	return m
}

// PaymentStatusChanged is a payments.StatusHandler.
func (m *Metrics) PaymentStatusChanged(_ context.Context, p *payments.Payment) error {
	m.statusChanges.WithLabelValues(p.Variant, string(p.Status)).Inc()
	if p.Status == payments.StatusConfirmed {
		amount, _ := p.CapturedAmount.Float64()
		m.capturedAmount.WithLabelValues(p.Variant, p.Currency).Add(amount)
	}
	return nil
}

// Instrument records request latency labelled with the chi route pattern.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		m.requestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).
			Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
