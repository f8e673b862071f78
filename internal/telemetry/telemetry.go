// Package telemetry exposes live occupancy state as Prometheus metrics.
// The Collector implements parking.EventSink, so it updates from the
// session's output stream like any other sink.
package telemetry

import (
	"math"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/occupancy.report/internal/parking"
)

// Collector holds the live gauges and counters for one session.
type Collector struct {
	Transitions atomic.Uint64
	Snapshots   atomic.Uint64

	emptyCount    atomic.Int64
	occupiedCount atomic.Int64
	rateBits      atomic.Uint64 // occupancy rate as math.Float64bits

	registry *prometheus.Registry
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
	}
	c.registerMetrics()
	return c
}

func (c *Collector) registerMetrics() {
	c.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "occupancy_spaces_empty",
			Help: "Number of spaces currently classified empty",
		},
		func() float64 { return float64(c.emptyCount.Load()) },
	))

	c.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "occupancy_spaces_occupied",
			Help: "Number of spaces currently classified occupied",
		},
		func() float64 { return float64(c.occupiedCount.Load()) },
	))

	c.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "occupancy_rate",
			Help: "Fraction of spaces currently occupied (0-1)",
		},
		func() float64 { return math.Float64frombits(c.rateBits.Load()) },
	))

	c.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "occupancy_transitions_total",
			Help: "Total logged state transitions this session",
		},
		func() float64 { return float64(c.Transitions.Load()) },
	))

	c.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "occupancy_snapshots_total",
			Help: "Total snapshots recorded this session",
		},
		func() float64 { return float64(c.Snapshots.Load()) },
	))
}

// SaveTransition implements parking.EventSink.
func (c *Collector) SaveTransition(sessionID string, rec parking.TransitionRecord) error {
	c.Transitions.Add(1)
	return nil
}

// SaveSnapshot implements parking.EventSink. Snapshots carry the counts,
// so the gauges update here rather than on transitions.
func (c *Collector) SaveSnapshot(sessionID string, snap parking.Snapshot) error {
	c.Snapshots.Add(1)
	c.emptyCount.Store(int64(snap.EmptyCount))
	c.occupiedCount.Store(int64(snap.OccupiedCount))
	c.rateBits.Store(math.Float64bits(snap.OccupancyRate))
	return nil
}

// Handler returns the Prometheus scrape handler for this collector.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
