// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "accountd"

// Metrics holds the service metrics. It satisfies auth.Recorder and the web
// layer's request recorder.
type Metrics struct {
	AuthOperations *prometheus.CounterVec
	HashDuration   prometheus.Histogram
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_operations_total",
				Help:      "Auth gate operations by operation and result kind",
			},
			[]string{"operation", "result"},
		),
		HashDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "password_hash_duration_seconds",
			Help:      "Time spent hashing passwords",
			Buckets:   []float64{.001, .005, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status code",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}

	reg.MustRegister(m.AuthOperations, m.HashDuration, m.HTTPRequests, m.HTTPDuration)
	return m
}

// ObserveOperation counts a gate operation outcome.
func (m *Metrics) ObserveOperation(op, result string) {
	m.AuthOperations.WithLabelValues(op, result).Inc()
}

// ObserveHash records one password hash.
func (m *Metrics) ObserveHash(d time.Duration) {
	m.HashDuration.Observe(d.Seconds())
}

// ObserveRequest records one HTTP request. route is the matched pattern,
// never the raw path, so reset tokens and ids stay out of label values.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}
