// Package prommetrics exports coordinator metrics to Prometheus.
package prommetrics

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/goliatone/go-hookdelivery/core"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultLabels are the tag keys kept as Prometheus labels. Other tags are
// dropped so every series of a metric shares one label set.
var DefaultLabels = []string{"operation", "status", "outcome"}

// DefaultBuckets cover millisecond durations from a fast local endpoint up to
// the default request timeout.
var DefaultBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

type Option func(*Recorder)

func WithLabels(labels ...string) Option {
	return func(r *Recorder) {
		cleaned := make([]string, 0, len(labels))
		seen := map[string]struct{}{}
		for _, label := range labels {
			label = sanitizeName(label)
			if label == "" {
				continue
			}
			if _, ok := seen[label]; ok {
				continue
			}
			seen[label] = struct{}{}
			cleaned = append(cleaned, label)
		}
		r.labels = cleaned
	}
}

func WithBuckets(buckets []float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = append([]float64(nil), buckets...)
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// Recorder implements core.MetricsRecorder. Collectors are created and
// registered the first time a metric name is seen. Registration failures are
// logged and the sample is dropped.
type Recorder struct {
	registerer prometheus.Registerer
	labels     []string
	buckets    []float64
	logger     core.Logger

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

func NewRecorder(registerer prometheus.Registerer, opts ...Option) *Recorder {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	recorder := &Recorder{
		registerer: registerer,
		labels:     append([]string(nil), DefaultLabels...),
		buckets:    append([]float64(nil), DefaultBuckets...),
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(recorder)
		}
	}
	recorder.logger = glog.Ensure(recorder.logger)
	return recorder
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	vec := r.counterVec(name)
	if vec == nil {
		return
	}
	vec.With(r.labelValues(tags)).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	vec := r.histogramVec(name)
	if vec == nil {
		return
	}
	vec.With(r.labelValues(tags)).Observe(value)
}

func (r *Recorder) counterVec(name string) *prometheus.CounterVec {
	metric := sanitizeName(name)
	if metric == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.counters[metric]; ok {
		return vec
	}
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metric,
		Help: "Webhook delivery counter " + name + ".",
	}, r.labels)
	if err := r.registerer.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			r.logger.Warn("metrics: failed to register counter", "metric", metric, "error", err.Error())
			return nil
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			r.logger.Warn("metrics: counter name taken by another collector", "metric", metric)
			return nil
		}
		vec = existing
	}
	r.counters[metric] = vec
	return vec
}

func (r *Recorder) histogramVec(name string) *prometheus.HistogramVec {
	metric := sanitizeName(name)
	if metric == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.histograms[metric]; ok {
		return vec
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metric,
		Help:    "Webhook delivery histogram " + name + ".",
		Buckets: r.buckets,
	}, r.labels)
	if err := r.registerer.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			r.logger.Warn("metrics: failed to register histogram", "metric", metric, "error", err.Error())
			return nil
		}
		existing, ok := already.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			r.logger.Warn("metrics: histogram name taken by another collector", "metric", metric)
			return nil
		}
		vec = existing
	}
	r.histograms[metric] = vec
	return vec
}

func (r *Recorder) labelValues(tags map[string]string) prometheus.Labels {
	values := make(prometheus.Labels, len(r.labels))
	for _, label := range r.labels {
		values[label] = strings.TrimSpace(tags[label])
	}
	return values
}

// sanitizeName maps "hookdelivery.enqueue.total" to "hookdelivery_enqueue_total".
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var builder strings.Builder
	builder.Grow(len(name))
	for index, char := range name {
		switch {
		case char >= 'a' && char <= 'z', char >= 'A' && char <= 'Z', char == '_':
			builder.WriteRune(char)
		case char >= '0' && char <= '9':
			if index == 0 {
				builder.WriteRune('_')
			}
			builder.WriteRune(char)
		default:
			builder.WriteRune('_')
		}
	}
	return builder.String()
}

var _ core.MetricsRecorder = (*Recorder)(nil)
