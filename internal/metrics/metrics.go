// Package metrics provides Prometheus metrics for ssgo.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "ssgo"
)

// Metrics contains all Prometheus metrics for a running controller.
type Metrics struct {
	// TCP relay metrics
	TCPConnectionsActive prometheus.Gauge
	TCPConnectionsTotal  prometheus.Counter
	TCPConnectLatency    prometheus.Histogram
	TCPConnectErrors     *prometheus.CounterVec

	// UDP relay metrics
	UDPAssociationsActive prometheus.Gauge
	UDPDatagramsTotal     *prometheus.CounterVec

	// Data transfer metrics, labeled by direction: "sent" or "received"
	BytesTotal *prometheus.CounterVec

	// Anti-probing metrics
	BannedIPsTotal prometheus.Counter
	HeaderFailures prometheus.Counter
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the default metrics instance, registered against the
// global Prometheus registry.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics creates a new Metrics instance registered against the
// default Prometheus registerer.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance with a custom
// registry, letting tests use an isolated prometheus.NewRegistry().
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TCPConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tcp_connections_active",
			Help:      "Number of currently active TCP relay connections",
		}),
		TCPConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tcp_connections_total",
			Help:      "Total TCP relay connections accepted",
		}),
		TCPConnectLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tcp_connect_latency_seconds",
			Help:      "Histogram of destination dial latency",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		TCPConnectErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tcp_connect_errors_total",
			Help:      "Total TCP relay errors by stage",
		}, []string{"stage"}),

		UDPAssociationsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "udp_associations_active",
			Help:      "Number of currently cached UDP associations",
		}),
		UDPDatagramsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "udp_datagrams_total",
			Help:      "Total UDP datagrams relayed by direction",
		}, []string{"direction"}),

		BytesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "Total bytes relayed by direction",
		}, []string{"direction"}),

		BannedIPsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "banned_ips_total",
			Help:      "Total peer IPs escalated to banned",
		}),
		HeaderFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "header_failures_total",
			Help:      "Total malformed-header/decrypt failures observed",
		}),
	}
}

// RecordTCPConnect records an accepted TCP relay connection.
func (m *Metrics) RecordTCPConnect() {
	m.TCPConnectionsActive.Inc()
	m.TCPConnectionsTotal.Inc()
}

// RecordTCPDisconnect records a TCP relay connection tearing down.
func (m *Metrics) RecordTCPDisconnect() {
	m.TCPConnectionsActive.Dec()
}

// RecordTCPConnectLatency records the dial latency to a destination.
func (m *Metrics) RecordTCPConnectLatency(seconds float64) {
	m.TCPConnectLatency.Observe(seconds)
}

// RecordTCPConnectError records a TCP relay error at the given stage
// (e.g. "header", "resolve", "dial").
func (m *Metrics) RecordTCPConnectError(stage string) {
	m.TCPConnectErrors.WithLabelValues(stage).Inc()
}

// RecordUDPAssociationOpened records a new cached UDP association.
func (m *Metrics) RecordUDPAssociationOpened() {
	m.UDPAssociationsActive.Inc()
}

// RecordUDPAssociationClosed records a cached UDP association torn down.
func (m *Metrics) RecordUDPAssociationClosed() {
	m.UDPAssociationsActive.Dec()
}

// RecordUDPDatagram records one relayed datagram in the given direction
// ("client_to_server" or "server_to_client").
func (m *Metrics) RecordUDPDatagram(direction string) {
	m.UDPDatagramsTotal.WithLabelValues(direction).Inc()
}

// RecordBytes records n bytes relayed in the given direction ("sent" or
// "received").
func (m *Metrics) RecordBytes(direction string, n float64) {
	m.BytesTotal.WithLabelValues(direction).Add(n)
}

// RecordBan records a peer IP escalating to banned.
func (m *Metrics) RecordBan() {
	m.BannedIPsTotal.Inc()
}

// RecordHeaderFailure records a malformed-header or decrypt failure.
func (m *Metrics) RecordHeaderFailure() {
	m.HeaderFailures.Inc()
}
