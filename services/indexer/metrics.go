package indexer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics are the indexer's Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry       *prometheus.Registry
	processed      *prometheus.CounterVec
	skipped        *prometheus.CounterVec
	failed         *prometheus.CounterVec
	lastBlock      prometheus.Gauge
	openRedemption prometheus.Gauge
	feedClients    prometheus.Gauge
}

// NewMetrics registers the indexer collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "givety",
			Subsystem: "indexer",
			Name:      "events_processed_total",
			Help:      "Events projected and committed, by event name.",
		}, []string{"event"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "givety",
			Subsystem: "indexer",
			Name:      "events_skipped_total",
			Help:      "Events skipped because they were already applied, by event name.",
		}, []string{"event"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "givety",
			Subsystem: "indexer",
			Name:      "projection_failures_total",
			Help:      "Events that failed validation or projection, by event name.",
		}, []string{"event"}),
		lastBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "givety",
			Subsystem: "indexer",
			Name:      "last_indexed_block",
			Help:      "Block number of the last committed event.",
		}),
		openRedemption: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "givety",
			Subsystem: "indexer",
			Name:      "open_redemption",
			Help:      "1 while a redemption is attached to Global, 0 otherwise.",
		}),
		feedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "givety",
			Subsystem: "indexer",
			Name:      "feed_clients",
			Help:      "Connected websocket feed clients.",
		}),
	}
	m.registry.MustRegister(
		m.processed,
		m.skipped,
		m.failed,
		m.lastBlock,
		m.openRedemption,
		m.feedClients,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) EventProcessed(event string, block uint64) {
	if m == nil {
		return
	}
	m.processed.WithLabelValues(event).Inc()
	m.lastBlock.Set(float64(block))
}

func (m *Metrics) EventSkipped(event string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(event).Inc()
}

func (m *Metrics) ProjectionFailed(event string) {
	if m == nil {
		return
	}
	if event == "" {
		event = "unknown"
	}
	m.failed.WithLabelValues(event).Inc()
}

func (m *Metrics) SetOpenRedemption(open bool) {
	if m == nil {
		return
	}
	if open {
		m.openRedemption.Set(1)
		return
	}
	m.openRedemption.Set(0)
}

func (m *Metrics) FeedClients(n int) {
	if m == nil {
		return
	}
	m.feedClients.Set(float64(n))
}
