// Package metrics counts what a measure run did and exports it in the
// node-exporter textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/andresmejia3/goniometer/internal/pose"
)

// Metrics holds the run's collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	imagesProcessed prometheus.Counter
	imagesFailed    *prometheus.CounterVec
	anglesMeasured  *prometheus.CounterVec
	anglesMissing   *prometheus.CounterVec
	inference       prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		imagesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "goniometer_images_processed_total",
			Help: "Images that produced a report row",
		}),
		imagesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goniometer_images_failed_total",
			Help: "Images skipped because of an error",
		}, []string{"stage"}),
		anglesMeasured: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goniometer_angles_measured_total",
			Help: "Joint angles successfully measured",
		}, []string{"joint"}),
		anglesMissing: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goniometer_angles_unavailable_total",
			Help: "Joint angles that could not be measured",
		}, []string{"joint", "reason"}),
		inference: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "goniometer_inference_seconds",
			Help:    "Pose model latency per image",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
	}
	m.registry.MustRegister(m.imagesProcessed, m.imagesFailed, m.anglesMeasured, m.anglesMissing, m.inference)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ImageProcessed() {
	if m == nil {
		return
	}
	m.imagesProcessed.Inc()
}

// ImageFailed counts a skipped image under the stage that failed
// (decode, infer, annotate, key).
func (m *Metrics) ImageFailed(stage string) {
	if m == nil {
		return
	}
	m.imagesFailed.WithLabelValues(stage).Inc()
}

func (m *Metrics) ObserveInference(d time.Duration) {
	if m == nil {
		return
	}
	m.inference.Observe(d.Seconds())
}

// ObserveAngles counts each measurement as measured or unavailable.
func (m *Metrics) ObserveAngles(ms []pose.Measurement) {
	if m == nil {
		return
	}
	for _, a := range ms {
		if a.OK() {
			m.anglesMeasured.WithLabelValues(a.Joint.String()).Inc()
			continue
		}
		m.anglesMissing.WithLabelValues(a.Joint.String(), a.Reason()).Inc()
	}
}

// WriteTextfile writes every collector to path atomically. A nil receiver
// writes nothing.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
