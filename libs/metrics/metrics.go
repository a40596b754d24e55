package metrics

import (
	"net/http"
	"strconv"

	"github.com/md-rashed-zaman/slotwise/libs/httpx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	SlotQueriesTotal *prometheus.CounterVec
	SlotsReturned    prometheus.Histogram
	BookingsTotal    *prometheus.CounterVec

	SettingsReadsTotal  *prometheus.CounterVec
	SettingsWritesTotal *prometheus.CounterVec
	BreakerState        *prometheus.GaugeVec

	EventsConsumedTotal  *prometheus.CounterVec
	EventsPublishedTotal prometheus.Counter
}

// NewCollector registers every metric on a private registry so tests can build as many
// collectors as they like.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collector{
		registry: reg,

		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path, and status code.",
		}, []string{"method", "path", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "path"}),

		SlotQueriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "availability",
			Name:      "slot_queries_total",
			Help:      "Slot queries by resulting day status.",
		}, []string{"status"}),

		SlotsReturned: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "availability",
			Name:      "slots_returned",
			Help:      "Number of bookable start times returned per query.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
		}),

		BookingsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Booking attempts by result.",
		}, []string{"result"}),

		SettingsReadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settings",
			Name:      "reads_total",
			Help:      "Settings reads by serving tier (cache, primary, secondary, default).",
		}, []string{"tier"}),

		SettingsWritesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settings",
			Name:      "writes_total",
			Help:      "Settings writes by tier that accepted them.",
		}, []string{"tier"}),

		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "settings",
			Name:      "breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open. Alert if 2.",
		}, []string{"name"}),

		EventsConsumedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "kafka",
			Name:      "events_consumed_total",
			Help:      "Consumed events by topic and outcome.",
		}, []string{"topic", "outcome"}),

		EventsPublishedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "kafka",
			Name:      "events_published_total",
			Help:      "Outbox events written to Kafka.",
		}),
	}
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// HTTPMiddleware records request counts and latency. Paths come from the mux's fixed routes,
// so cardinality stays bounded.
func (c *Collector) HTTPMiddleware() httpx.Middleware {
	return httpx.WithObserver(func(_ *http.Request, o httpx.Observation) {
		c.RequestsTotal.WithLabelValues(o.Method, o.Path, strconv.Itoa(o.Status)).Inc()
		c.RequestDuration.WithLabelValues(o.Method, o.Path).Observe(o.Duration.Seconds())
	})
}
