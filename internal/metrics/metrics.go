/*
 * Copyright 2025 Cong Wang
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels
const (
	OutcomeOK        = "ok"
	OutcomeNotFound  = "not_found"
	OutcomeError     = "error"
	OutcomeRefreshed = "refreshed"
)

// MetricsProvider is what the service and server record into
type MetricsProvider interface {
	RecordHTTPRequest(method, path string, statusCode int, duration time.Duration)
	IncHTTPRequestsInFlight()
	DecHTTPRequestsInFlight()
	RecordCacheLookup(level string, hit bool)
	RecordRefresh(level, outcome string)
	RecordStoreOperation(operation, outcome string, duration time.Duration)
	RecordDocumentSize(level string, sizeBytes int)
	RecordError(component, errorCode, errorType string)
	Handler() http.Handler
}

// Metrics holds all Prometheus metrics on a private registry
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Snapshot metrics
	CacheLookupsTotal *prometheus.CounterVec
	RefreshesTotal    *prometheus.CounterVec
	StoreOperations   *prometheus.CounterVec
	StoreDuration     *prometheus.HistogramVec
	DocumentSizeBytes *prometheus.HistogramVec

	// Error metrics
	ErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on a fresh registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ttg_legacy_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ttg_legacy_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ttg_legacy_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		CacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ttg_legacy_cache_lookups_total",
				Help: "Snapshot cache lookups by result",
			},
			[]string{"level", "result"},
		),
		RefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ttg_legacy_refreshes_total",
				Help: "Forced cache refreshes by outcome",
			},
			[]string{"level", "outcome"},
		),
		StoreOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ttg_legacy_store_operations_total",
				Help: "Blob store operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		StoreDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ttg_legacy_store_duration_seconds",
				Help:    "Blob store operation duration in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"operation"},
		),
		DocumentSizeBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ttg_legacy_document_size_bytes",
				Help:    "Size of accepted schedule documents in bytes",
				Buckets: []float64{1024, 10240, 102400, 1048576, 10485760, 52428800}, // 1KB to 50MB
			},
			[]string{"level"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ttg_legacy_errors_total",
				Help: "Total number of errors",
			},
			[]string{"component", "error_code", "error_type"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.CacheLookupsTotal,
		m.RefreshesTotal,
		m.StoreOperations,
		m.StoreDuration,
		m.DocumentSizeBytes,
		m.ErrorsTotal,
	)

	return m
}

// NewMetricsProvider returns the Prometheus-backed provider
func NewMetricsProvider() MetricsProvider {
	return NewMetrics()
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	statusStr := strconv.Itoa(statusCode)
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusStr).Observe(duration.Seconds())
}

// IncHTTPRequestsInFlight increments in-flight HTTP requests
func (m *Metrics) IncHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// DecHTTPRequestsInFlight decrements in-flight HTTP requests
func (m *Metrics) DecHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}

// RecordCacheLookup counts a cache hit or miss
func (m *Metrics) RecordCacheLookup(level string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(level, result).Inc()
}

// RecordRefresh counts a forced refresh
func (m *Metrics) RecordRefresh(level, outcome string) {
	m.RefreshesTotal.WithLabelValues(level, outcome).Inc()
}

// RecordStoreOperation records a load or save
func (m *Metrics) RecordStoreOperation(operation, outcome string, duration time.Duration) {
	m.StoreOperations.WithLabelValues(operation, outcome).Inc()
	m.StoreDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordDocumentSize observes the size of a stored document
func (m *Metrics) RecordDocumentSize(level string, sizeBytes int) {
	if sizeBytes > 0 {
		m.DocumentSizeBytes.WithLabelValues(level).Observe(float64(sizeBytes))
	}
}

// RecordError records error metrics
func (m *Metrics) RecordError(component, errorCode, errorType string) {
	m.ErrorsTotal.WithLabelValues(component, errorCode, errorType).Inc()
}

// Nop discards every observation
type Nop struct{}

func (Nop) RecordHTTPRequest(string, string, int, time.Duration) {}
func (Nop) IncHTTPRequestsInFlight() {}
func (Nop) DecHTTPRequestsInFlight() {}
func (Nop) RecordCacheLookup(string, bool) {}
func (Nop) RecordRefresh(string, string) {}
func (Nop) RecordStoreOperation(string, string, time.Duration) {}
func (Nop) RecordDocumentSize(string, int) {}
func (Nop) RecordError(string, string, string) {}
func (Nop) Handler() http.Handler { return http.NotFoundHandler() }

// Timer provides a convenient way to time operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed duration
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
