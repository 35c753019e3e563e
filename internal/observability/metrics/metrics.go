package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking and payment
// flows. All observe methods are nil-safe so wiring stays optional in tests.
type BookingMetrics struct {
	bookingsTotal    *prometheus.CounterVec
	reschedulesTotal *prometheus.CounterVec
	paymentsTotal    *prometheus.CounterVec
	resolveLatency   *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "horamarcada",
			Subsystem: "booking",
			Name:      "create_total",
			Help:      "Total booking attempts",
		}, []string{"status"}),
		reschedulesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "horamarcada",
			Subsystem: "booking",
			Name:      "reschedule_total",
			Help:      "Total reschedule attempts",
		}, []string{"status"}),
		paymentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "horamarcada",
			Subsystem: "payment",
			Name:      "intent_resolved_total",
			Help:      "Payment intents by final state",
		}, []string{"status"}),
		resolveLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "horamarcada",
			Subsystem: "availability",
			Name:      "resolve_latency_seconds",
			Help:      "Latency of slot grid resolution",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.reschedulesTotal, m.paymentsTotal, m.resolveLatency)
	return m
}

func (m *BookingMetrics) ObserveBooking(status string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(status).Inc()
}

func (m *BookingMetrics) ObserveReschedule(status string) {
	if m == nil {
		return
	}
	m.reschedulesTotal.WithLabelValues(status).Inc()
}

func (m *BookingMetrics) ObservePaymentResolved(status string) {
	if m == nil {
		return
	}
	m.paymentsTotal.WithLabelValues(status).Inc()
}

func (m *BookingMetrics) ObserveResolveLatency(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.resolveLatency.WithLabelValues(outcome).Observe(seconds)
}
