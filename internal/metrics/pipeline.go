package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "imgpipe"

// Recorder receives stage outcomes from the pipeline controller.
type Recorder interface {
	ObserveStage(stage, outcome string, elapsed time.Duration)
	ObserveThreshold(stage string, level float64)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) ObserveStage(string, string, time.Duration) {}
func (NopRecorder) ObserveThreshold(string, float64)           {}

// Prometheus records stage outcomes as Prometheus collectors.
type Prometheus struct {
	stages    *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	threshold *prometheus.GaugeVec
}

// NewPrometheus registers the pipeline collectors with reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	factory := promauto.With(reg)

	return &Prometheus{
		stages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_total",
			Help:      "The total number of pipeline stages attempted, by outcome.",
		}, []string{"stage", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in a pipeline stage, receive to transmit.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"stage"}),
		threshold: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "threshold_level",
			Help:      "The last binarization level selected by a stage.",
		}, []string{"stage"}),
	}
}

func (p *Prometheus) ObserveStage(stage, outcome string, elapsed time.Duration) {
	p.stages.WithLabelValues(stage, outcome).Inc()
	p.duration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (p *Prometheus) ObserveThreshold(stage string, level float64) {
	p.threshold.WithLabelValues(stage).Set(level)
}
