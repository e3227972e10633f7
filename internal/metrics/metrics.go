// Package metrics exposes routing counters for Prometheus.
package metrics

import (
	"errors"
	"net/http"

	"yield-router-go/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector counts router operations by outcome. A nil *Collector is valid
// and records nothing.
type Collector struct {
	registry *prometheus.Registry

	operations      *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	compensations   *prometheus.CounterVec
	eventsPublished prometheus.Counter
	inboundCredits  *prometheus.CounterVec
}

func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "yield_router"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Routing operations by kind and result",
		},
		[]string{"operation", "asset", "result"},
	)

	c.rejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Rejected operations by reason",
		},
		[]string{"operation", "reason"},
	)

	c.compensations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compensations_total",
			Help:      "Venue compensations after an aborted commit",
		},
		[]string{"operation", "result"},
	)

	c.eventsPublished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "projector",
			Name:      "events_published_total",
			Help:      "Outbox events delivered to the publisher",
		},
	)

	c.inboundCredits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "inbound_total",
			Help:      "Inbound transfers by outcome",
		},
		[]string{"result"},
	)

	c.registry.MustRegister(
		c.operations,
		c.rejections,
		c.compensations,
		c.eventsPublished,
		c.inboundCredits,
		collectors.NewGoCollector(),
	)
	return c
}

// Registry returns the Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Observe records the outcome of an operation. Domain rejections are also
// counted by reason.
func (c *Collector) Observe(operation, asset string, err error) {
	if c == nil {
		return
	}
	if err == nil {
		c.operations.WithLabelValues(operation, asset, "success").Inc()
		return
	}
	c.operations.WithLabelValues(operation, asset, "error").Inc()
	c.rejections.WithLabelValues(operation, Reason(err)).Inc()
}

func (c *Collector) Compensated(operation string, err error) {
	if c == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	c.compensations.WithLabelValues(operation, result).Inc()
}

func (c *Collector) EventsPublished(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.eventsPublished.Add(float64(n))
}

func (c *Collector) Inbound(result string) {
	if c == nil {
		return
	}
	c.inboundCredits.WithLabelValues(result).Inc()
}

var reasons = []struct {
	err    error
	reason string
}{
	{models.ErrReentrancy, "reentrancy"},
	{models.ErrSourceBusy, "source_busy"},
	{models.ErrPaused, "paused"},
	{models.ErrUnauthorized, "unauthorized"},
	{models.ErrAlreadyOptimal, "already_optimal"},
	{models.ErrThresholdNotMet, "threshold_not_met"},
	{models.ErrNoAvailableSource, "no_source"},
	{models.ErrAdapterFailure, "adapter_failure"},
	{models.ErrInvalidInput, "invalid_input"},
}

// Reason maps an error to a low-cardinality label.
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "internal"
}
