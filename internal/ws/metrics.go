package ws

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the realtime hub. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	ActiveConnections    prometheus.Gauge
	Admissions           prometheus.Counter
	AuthFailures         prometheus.Counter
	EventsPublished      *prometheus.CounterVec
	Deliveries           *prometheus.CounterVec
	FanOut               prometheus.Histogram
	SubscriptionsRefused *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "office_realtime_connections_active",
			Help: "Number of admitted WebSocket connections",
		}),
		Admissions: factory.NewCounter(prometheus.CounterOpts{
			Name: "office_realtime_admissions_total",
			Help: "Total number of admitted WebSocket connections",
		}),
		AuthFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "office_realtime_auth_failures_total",
			Help: "Total number of refused WebSocket handshakes",
		}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "office_realtime_events_published_total",
			Help: "Total number of events published, by event name",
		}, []string{"event"}),
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "office_realtime_deliveries_total",
			Help: "Per-connection deliveries, by result",
		}, []string{"result"}),
		FanOut: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "office_realtime_publish_recipients",
			Help:    "Number of local recipients resolved per publish",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		}),
		SubscriptionsRefused: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "office_realtime_subscriptions_refused_total",
			Help: "Entity subscriptions refused, by reason",
		}, []string{"reason"}),
	}
}

func (m *Metrics) connectionOpened() {
	if m == nil {
		return
	}
	m.Admissions.Inc()
	m.ActiveConnections.Inc()
}

func (m *Metrics) connectionClosed() {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
}

// AuthFailed records a refused handshake.
func (m *Metrics) AuthFailed() {
	if m == nil {
		return
	}
	m.AuthFailures.Inc()
}

func (m *Metrics) recordDelivery(d Delivery) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(d.Event.String()).Inc()
	m.FanOut.Observe(float64(d.Recipients))
	if d.Delivered > 0 {
		m.Deliveries.WithLabelValues("delivered").Add(float64(d.Delivered))
	}
	if d.Dropped > 0 {
		m.Deliveries.WithLabelValues("dropped").Add(float64(d.Dropped))
	}
}

func (m *Metrics) subscriptionsRefused(rejected []Rejection) {
	if m == nil {
		return
	}
	for _, r := range rejected {
		m.SubscriptionsRefused.WithLabelValues(r.Reason).Inc()
	}
}
