package metrics

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"transit-topo/internal/importer"
	"transit-topo/internal/wikibase"
)

// Collector exposes import activity. It observes both the remote clients and
// the importer.
type Collector struct {
	reg *prometheus.Registry

	Entities *prometheus.CounterVec // kind, outcome
	Links    *prometheus.CounterVec // relation, outcome

	RemoteRequests *prometheus.CounterVec   // service, outcome
	RemoteDuration *prometheus.HistogramVec // service

	ImportDuration prometheus.Histogram
	ImportRuns     *prometheus.CounterVec // result: success|failure

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Entities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "topo_entities_total",
			Help: "Feed records handled, by entity kind and outcome.",
		}, []string{"kind", "outcome"}),
		Links: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "topo_links_total",
			Help: "Links between entities, by relation and outcome.",
		}, []string{"relation", "outcome"}),
		RemoteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "topo_remote_requests_total",
			Help: "Requests sent to the knowledge base, by service and outcome.",
		}, []string{"service", "outcome"}),
		RemoteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "topo_remote_request_duration_seconds",
			Help:    "Latency of requests to the knowledge base.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"service"}),
		ImportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "topo_import_duration_seconds",
			Help:    "Duration of whole feed imports.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),
		ImportRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "topo_import_runs_total",
			Help: "Feed imports, by result.",
		}, []string{"result"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "topo_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "topo_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "topo_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "topo_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
	}

	reg.MustRegister(
		c.Entities, c.Links,
		c.RemoteRequests, c.RemoteDuration,
		c.ImportDuration, c.ImportRuns,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
	)
	return c
}

// ObserveRequest implements wikibase.Observer.
func (c *Collector) ObserveRequest(service string, d time.Duration, err error) {
	c.RemoteRequests.WithLabelValues(service, requestOutcome(err)).Inc()
	c.RemoteDuration.WithLabelValues(service).Observe(d.Seconds())
}

func requestOutcome(err error) string {
	var te *wikibase.TransportError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &te) && te.Status != 0:
		return "http_error"
	}
	return "network_error"
}

// Entity implements importer.Observer.
func (c *Collector) Entity(ev importer.EntityEvent) {
	c.Entities.WithLabelValues(ev.Kind, string(ev.Outcome)).Inc()
}

// Link implements importer.Observer.
func (c *Collector) Link(ev importer.LinkEvent) {
	c.Links.WithLabelValues(ev.Relation, string(ev.Outcome)).Inc()
}

// ObserveImport records a finished import.
func (c *Collector) ObserveImport(d time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.ImportRuns.WithLabelValues(result).Inc()
	c.ImportDuration.Observe(d.Seconds())
}

func (c *Collector) NATSPublishedInc()              { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc()             { c.NATSPublishErrs.Inc() }
func (c *Collector) PublishObserve(d time.Duration) { c.PublishDuration.Observe(d.Seconds()) }
func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
		return
	}
	c.NATSConnected.Set(0)
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
	slog.Info("metrics listening", "addr", addr)
	return srv
}
