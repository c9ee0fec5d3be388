// Package metrics exposes engine and HTTP metrics on a private Prometheus registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"roundtable/conversation"
)

// Collector records conversation events and HTTP traffic. It implements
// conversation.Observer.
type Collector struct {
	registry *prometheus.Registry

	turnsTotal         *prometheus.CounterVec
	selectionsTotal    *prometheus.CounterVec
	noResponderTotal   prometheus.Counter
	generationFailures prometheus.Counter
	externalFailures   *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	logger *zap.Logger
}

func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		turnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Committed conversation turns by kind",
		}, []string{"kind"}),
		selectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speaker_selections_total",
			Help:      "Speaker selections by reason",
		}, []string{"reason"}),
		noResponderTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "no_responder_total",
			Help:      "User messages no agent answered",
		}),
		generationFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_failures_total",
			Help:      "Turns aborted because a reply could not be generated",
		}),
		externalFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_failures_total",
			Help:      "Best-effort collaborator failures by service",
		}, []string{"service"}),
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"method", "path"}),
		logger: logger.With(zap.String("component", "metrics")),
	}
}

// Handler serves the collector's registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) TurnCommitted(kind conversation.UtteranceKind) {
	c.turnsTotal.WithLabelValues(string(kind)).Inc()
}

func (c *Collector) SpeakerSelected(reason conversation.SelectReason) {
	c.selectionsTotal.WithLabelValues(string(reason)).Inc()
}

func (c *Collector) NoResponder() {
	c.noResponderTotal.Inc()
}

func (c *Collector) GenerationFailed() {
	c.generationFailures.Inc()
}

func (c *Collector) ExternalFailure(service string) {
	c.externalFailures.WithLabelValues(service).Inc()
}

func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
