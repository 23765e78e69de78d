// Package metrics exposes Prometheus instrumentation for visual comparisons.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Comparison outcomes used as the "outcome" label.
const (
	OutcomeBaselineCreated = "baseline_created"
	OutcomeMatch           = "match"
	OutcomeMismatch        = "mismatch"
	OutcomeError           = "error"
)

// Collector tracks comparison counts, diff sizes and latency.
type Collector struct {
	comparisons *prometheus.CounterVec
	diffPixels  prometheus.Histogram
	duration    prometheus.Histogram
}

// NewCollector registers the visual metrics on reg. A nil reg uses the
// default registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		comparisons: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "visual_comparisons_total",
			Help: "Total number of screenshot comparisons by outcome",
		}, []string{"outcome"}),
		diffPixels: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "visual_diff_pixels",
			Help:    "Number of differing pixels per completed comparison",
			Buckets: []float64{0, 1, 10, 100, 1000, 10000, 100000, 1000000},
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "visual_compare_duration_seconds",
			Help:    "Screenshot comparison latency including capture",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Observe records one comparison.
func (c *Collector) Observe(outcome string, diffPixels int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.comparisons.WithLabelValues(outcome).Inc()
	c.duration.Observe(elapsed.Seconds())
	if outcome == OutcomeMatch || outcome == OutcomeMismatch {
		c.diffPixels.Observe(float64(diffPixels))
	}
}

// WriteTextfile dumps every metric gathered by g to path in the text
// exposition format, for the node exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
