package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service. Each instance owns its
// registry so tests can build as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	// Classifier
	ChangesProcessedTotal *prometheus.CounterVec
	EventsPublishedTotal  *prometheus.CounterVec
	PublishFailuresTotal  *prometheus.CounterVec

	// Provisioner
	ProvisioningResultsTotal *prometheus.CounterVec
	ProvisioningDuration     *prometheus.HistogramVec

	// Reconciler
	ReconcileOutcomesTotal *prometheus.CounterVec

	// Bus dispatcher
	DeliveriesTotal *prometheus.CounterVec

	// Federation
	FederationRequestsTotal *prometheus.CounterVec

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ChangesProcessedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenantops",
			Subsystem: "classifier",
			Name:      "changes_processed_total",
			Help:      "Change records processed, by classification result",
		}, []string{"result"}),
		EventsPublishedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenantops",
			Subsystem: "bus",
			Name:      "events_published_total",
			Help:      "Events accepted by the bus, by detail type",
		}, []string{"detail_type"}),
		PublishFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenantops",
			Subsystem: "bus",
			Name:      "publish_failures_total",
			Help:      "Events the bus rejected, by detail type",
		}, []string{"detail_type"}),

		ProvisioningResultsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenantops",
			Subsystem: "provisioner",
			Name:      "results_total",
			Help:      "Provisioning results, by event type and status",
		}, []string{"event_type", "status"}),
		ProvisioningDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tenantops",
			Subsystem: "provisioner",
			Name:      "duration_seconds",
			Help:      "Histogram of provisioning run durations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),

		ReconcileOutcomesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenantops",
			Subsystem: "reconciler",
			Name:      "outcomes_total",
			Help:      "Reconcile attempts, by outcome",
		}, []string{"outcome"}),

		DeliveriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenantops",
			Subsystem: "bus",
			Name:      "deliveries_total",
			Help:      "Event deliveries to subscribers, by detail type and result",
		}, []string{"detail_type", "result"}),

		FederationRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenantops",
			Subsystem: "federation",
			Name:      "requests_total",
			Help:      "Console access requests, by result",
		}, []string{"result"}),

		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenantops",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests, by method and status code",
		}, []string{"method", "code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tenantops",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Histogram of HTTP request durations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// Handler serves this instance's registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
