package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// NewRegistry returns the registry served on /metrics.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Metrics is safe to use as a nil pointer; every recorder is then a no-op.
type Metrics struct {
	ordersCreated   prometheus.Counter
	orderTotal      prometheus.Histogram
	payments        *prometheus.CounterVec
	paymentsSettled *prometheus.CounterVec
	pricingDegraded *prometheus.CounterVec
	rateSnapshots   *prometheus.CounterVec
	stockRejections prometheus.Counter
	httpRequests    *prometheus.HistogramVec
}

func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bullion",
			Name:      "orders_created_total",
			Help:      "Orders persisted.",
		}),
		orderTotal: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bullion",
			Name:      "order_total_amount",
			Help:      "Order totals in major currency units.",
			Buckets:   prometheus.ExponentialBuckets(100, 4, 10),
		}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bullion",
			Name:      "payments_total",
			Help:      "Payments recorded, by provider status.",
		}, []string{"status", "method"}),
		paymentsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bullion",
			Name:      "payments_reconciled_total",
			Help:      "Pending payments settled by verification.",
		}, []string{"status"}),
		pricingDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bullion",
			Name:      "pricing_degraded_total",
			Help:      "Price resolutions that fell back to zero or an error breakdown.",
		}, []string{"reason"}),
		rateSnapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bullion",
			Name:      "rate_snapshots_total",
			Help:      "Rate snapshots appended, by material.",
		}, []string{"material"}),
		stockRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bullion",
			Name:      "order_stock_rejections_total",
			Help:      "Order lines rejected for insufficient stock.",
		}),
		httpRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bullion",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	if reg != nil {
		reg.MustRegister(m.ordersCreated, m.orderTotal, m.payments, m.paymentsSettled, m.pricingDegraded, m.rateSnapshots, m.stockRejections, m.httpRequests)
	}
	return m
}

func (m *Metrics) OrderCreated(total float64) {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
	m.orderTotal.Observe(total)
}

func (m *Metrics) PaymentRecorded(status, method string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(status, method).Inc()
}

func (m *Metrics) PaymentReconciled(status string) {
	if m == nil {
		return
	}
	m.paymentsSettled.WithLabelValues(status).Inc()
}

func (m *Metrics) PricingDegraded(reason string) {
	if m == nil {
		return
	}
	m.pricingDegraded.WithLabelValues(reason).Inc()
}

func (m *Metrics) RateSnapshotAppended(material string) {
	if m == nil {
		return
	}
	m.rateSnapshots.WithLabelValues(material).Inc()
}

func (m *Metrics) StockRejected() {
	if m == nil {
		return
	}
	m.stockRejections.Inc()
}

func (m *Metrics) HTTPRequest(method, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(took.Seconds())
}
