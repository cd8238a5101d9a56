// Package metrics exposes the crawler's optional Prometheus /metrics
// endpoint, started by the scan command in both single-pass and batch
// mode when --monitor is passed.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

// Metrics collects crawl-level counters and gauges for Prometheus scraping.
type Metrics struct {
	urlsProcessedTotal    *prometheus.CounterVec
	batchDurationSeconds  prometheus.Histogram
	browserPoolAvailable  prometheus.Gauge
	preflightFailuresTotal *prometheus.CounterVec

	logger      *zap.Logger
	httpHandler func(*fasthttp.RequestCtx)
}

// New creates a Metrics collector registered against the default registry.
func New(logger *zap.Logger) *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer, logger)
}

// NewWithRegistry creates a Metrics collector registered against registerer,
// for test isolation from the process-global default registry.
func NewWithRegistry(registerer prometheus.Registerer, logger *zap.Logger) *Metrics {
	m := &Metrics{logger: logger}

	m.urlsProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crawler",
		Name:      "urls_processed_total",
		Help:      "Total URLs processed, labeled by outcome.",
	}, []string{"outcome"}) // outcome: success, no_data, error

	m.batchDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "crawler",
		Name:      "batch_duration_seconds",
		Help:      "Wall-clock duration of a completed batch.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to 2048s (~34min)
	})

	m.browserPoolAvailable = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "crawler",
		Name:      "browser_pool_available",
		Help:      "Number of idle browser instances in the pool.",
	})

	m.preflightFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crawler",
		Name:      "preflight_failures_total",
		Help:      "Total preflight check failures, labeled by reason.",
	}, []string{"reason"}) // reason: dns, ssl

	registerer.MustRegister(
		m.urlsProcessedTotal,
		m.batchDurationSeconds,
		m.browserPoolAvailable,
		m.preflightFailuresTotal,
	)

	gatherer, ok := registerer.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	m.httpHandler = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	logger.Info("crawler prometheus metrics initialized")
	return m
}

func (m *Metrics) RecordURLProcessed(outcome string) {
	m.urlsProcessedTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordBatchDuration(seconds float64) {
	m.batchDurationSeconds.Observe(seconds)
}

func (m *Metrics) UpdateBrowserPoolAvailable(available float64) {
	m.browserPoolAvailable.Set(available)
}

func (m *Metrics) RecordPreflightFailure(reason string) {
	m.preflightFailuresTotal.WithLabelValues(reason).Inc()
}

// ServeHTTP serves the Prometheus exposition format over fasthttp.
func (m *Metrics) ServeHTTP(ctx *fasthttp.RequestCtx) {
	m.httpHandler(ctx)
}
