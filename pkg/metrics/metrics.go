// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exposes engine and REST counters to Prometheus
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Thermoquad/seriamp/pkg/seriamp"
)

const namespace = "seriamp"

// NewRegistry creates a registry with the Go and process collectors registered
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus exposition format
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// ClientMetrics records engine activity. It implements seriamp.Observer.
type ClientMetrics struct {
	Dispatches *prometheus.CounterVec   // labels: protocol, request, result
	Latency    *prometheus.HistogramVec // labels: protocol
	Retries    *prometheus.CounterVec   // labels: protocol, request
	Frames     *prometheus.CounterVec   // labels: protocol, kind, origin=reply|pushed
}

var _ seriamp.Observer = (*ClientMetrics)(nil)

// NewClientMetrics registers and returns the engine metrics
func NewClientMetrics(reg prometheus.Registerer) *ClientMetrics {
	m := &ClientMetrics{
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Dispatch attempts by result.",
		}, []string{"protocol", "request", "result"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time from write to correlated response.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2, 5},
		}, []string{"protocol"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_total",
			Help:      "Dispatch retries after transient failures.",
		}, []string{"protocol", "request"}),
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames received, split into replies and pushed updates.",
		}, []string{"protocol", "kind", "origin"}),
	}
	reg.MustRegister(m.Dispatches, m.Latency, m.Retries, m.Frames)
	return m
}

// Result labels a dispatch outcome by error kind
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	if kind, ok := seriamp.KindOf(err); ok {
		return kind.String()
	}
	return "error"
}

func (m *ClientMetrics) ObserveDispatch(protocol, request string, elapsed time.Duration, err error) {
	m.Dispatches.WithLabelValues(protocol, request, Result(err)).Inc()
	if err == nil {
		m.Latency.WithLabelValues(protocol).Observe(elapsed.Seconds())
	}
}

func (m *ClientMetrics) ObserveRetry(protocol, request string, _ error) {
	m.Retries.WithLabelValues(protocol, request).Inc()
}

func (m *ClientMetrics) ObserveFrame(protocol, kind string, correlated bool) {
	origin := "pushed"
	if correlated {
		origin = "reply"
	}
	m.Frames.WithLabelValues(protocol, kind, origin).Inc()
}

// HTTPMetrics counts REST requests
type HTTPMetrics struct {
	Requests    *prometheus.CounterVec // labels: method, route, status
	RateLimited prometheus.Counter
}

// NewHTTPMetrics registers and returns the REST metrics
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "REST requests by route and status.",
		}, []string{"method", "route", "status"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_rate_limited_total",
			Help:      "REST requests rejected by the rate limiter.",
		}),
	}
	reg.MustRegister(m.Requests, m.RateLimited)
	return m
}
