package observability

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusFactory is a MetricFactory backed by a prometheus.Registerer.
// Dotted metric names become underscore separated; counters get a
// "_total" suffix.
type PrometheusFactory struct {
	factory promauto.Factory
	buckets []float64
}

// NewPrometheusFactory registers metrics on reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewPrometheusFactory(reg prometheus.Registerer) *PrometheusFactory {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusFactory{
		factory: promauto.With(reg),
		buckets: prometheus.DefBuckets,
	}
}

// WithBuckets sets the histogram buckets for metrics created afterwards.
func (f *PrometheusFactory) WithBuckets(buckets []float64) *PrometheusFactory {
	f.buckets = buckets
	return f
}

// Counter implements MetricFactory.
func (f *PrometheusFactory) Counter(name string) Counter {
	metric := promName(name)
	return f.factory.NewCounter(prometheus.CounterOpts{
		Name: metric + "_total",
		Help: "Total " + strings.ReplaceAll(name, ".", " ") + " events.",
	})
}

// Histogram implements MetricFactory.
func (f *PrometheusFactory) Histogram(name string) Histogram {
	return f.factory.NewHistogram(prometheus.HistogramOpts{
		Name:    promName(name),
		Help:    "Distribution of " + strings.ReplaceAll(name, ".", " ") + ".",
		Buckets: f.buckets,
	})
}

func promName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}
