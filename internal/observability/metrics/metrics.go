package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking funnel.
type BookingMetrics struct {
	reconcileTotal    *prometheus.CounterVec
	duplicateTotal    prometheus.Counter
	verificationTotal *prometheus.CounterVec
	slotFallbackTotal prometheus.Counter
	transitionTotal   *prometheus.CounterVec
	handlerLatency    *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		reconcileTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webklar",
			Subsystem: "booking",
			Name:      "reconcile_total",
			Help:      "Booking submissions by reconciliation outcome",
		}, []string{"outcome"}),
		duplicateTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "webklar",
			Subsystem: "booking",
			Name:      "duplicate_lookups_total",
			Help:      "Lookups that matched more than one customer row",
		}),
		verificationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webklar",
			Subsystem: "booking",
			Name:      "verification_sends_total",
			Help:      "Verification link sends by result",
		}, []string{"result"}),
		slotFallbackTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "webklar",
			Subsystem: "booking",
			Name:      "slot_availability_fallback_total",
			Help:      "Slot listings served as all-available because bookings could not be read",
		}),
		transitionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webklar",
			Subsystem: "booking",
			Name:      "status_transitions_total",
			Help:      "Appointment status transitions",
		}, []string{"from", "to"}),
		handlerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "webklar",
			Subsystem: "booking",
			Name:      "handler_latency_seconds",
			Help:      "Latency of booking HTTP handlers",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "code"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.reconcileTotal, m.duplicateTotal, m.verificationTotal, m.slotFallbackTotal, m.transitionTotal, m.handlerLatency)
	return m
}

func (m *BookingMetrics) ObserveReconcile(outcome string) {
	if m == nil {
		return
	}
	m.reconcileTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveDuplicate() {
	if m == nil {
		return
	}
	m.duplicateTotal.Inc()
}

func (m *BookingMetrics) ObserveVerificationSend(result string) {
	if m == nil {
		return
	}
	m.verificationTotal.WithLabelValues(result).Inc()
}

func (m *BookingMetrics) ObserveSlotFallback() {
	if m == nil {
		return
	}
	m.slotFallbackTotal.Inc()
}

func (m *BookingMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionTotal.WithLabelValues(from, to).Inc()
}

func (m *BookingMetrics) ObserveHandlerLatency(route, code string, seconds float64) {
	if m == nil {
		return
	}
	m.handlerLatency.WithLabelValues(route, code).Observe(seconds)
}
