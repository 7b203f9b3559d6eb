// Package metrics holds Prometheus collectors for the image pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes recorded on images_processed_total.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Pipeline records per-image processing results. A nil *Pipeline is a no-op.
type Pipeline struct {
	processed      *prometheus.CounterVec
	uploadDuration *prometheus.HistogramVec
}

// NewPipeline creates the collectors and registers them on reg.
func NewPipeline(reg prometheus.Registerer) (*Pipeline, error) {
	p := &Pipeline{
		processed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "images_processed_total",
				Help: "Total number of images processed, by source and outcome.",
			},
			[]string{"source", "outcome"},
		),
		uploadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "image_upload_duration_seconds",
				Help:    "Time spent uploading a normalized image to the hosting backend.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend"},
		),
	}

	for _, c := range []prometheus.Collector{p.processed, p.uploadDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Processed counts one image from source with the given outcome.
func (p *Pipeline) Processed(source, outcome string) {
	if p == nil {
		return
	}
	p.processed.WithLabelValues(source, outcome).Inc()
}

// ObserveUpload records how long a backend upload took.
func (p *Pipeline) ObserveUpload(backend string, d time.Duration) {
	if p == nil {
		return
	}
	p.uploadDuration.WithLabelValues(backend).Observe(d.Seconds())
}
