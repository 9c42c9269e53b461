// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "neurotype"

// Metrics holds all Prometheus metrics for the daemon. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry prometheus.Gatherer

	// Stream metrics
	StreamConnected  prometheus.Gauge
	SamplesReceived  prometheus.Counter
	StreamErrors     *prometheus.CounterVec
	HandshakeLatency prometheus.Histogram

	// Segmentation metrics
	SegmentsProduced    prometheus.Counter
	SubSegmentsProduced prometheus.Counter
	SamplesDropped      prometheus.Counter

	// Classification metrics
	Classifications   *prometheus.CounterVec
	StartSymbolChecks *prometheus.CounterVec

	// Orchestrator metrics
	PipelineRuns     *prometheus.CounterVec
	PipelineDuration prometheus.Histogram
	TrainingSessions *prometheus.CounterVec
	RefineFallbacks  prometheus.Counter

	// Event metrics
	EventsPublished *prometheus.CounterVec
}

// New creates and registers all metrics on reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,

		StreamConnected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_connected",
			Help:      "1 while the device stream is subscribed",
		}),
		SamplesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_samples_received_total",
			Help:      "Total number of EEG samples received from the device",
		}),
		StreamErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_errors_total",
			Help:      "Total number of stream errors",
		}, []string{"kind"}),
		HandshakeLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_handshake_seconds",
			Help:      "Time from dial to stream subscription",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),

		SegmentsProduced: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_total",
			Help:      "Total number of full segments produced",
		}),
		SubSegmentsProduced: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subsegments_total",
			Help:      "Total number of sub-segments produced",
		}),
		SamplesDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_tail_samples_dropped_total",
			Help:      "Samples discarded because they did not fill a segment",
		}),

		Classifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Sub-segment classifications by outcome",
		}, []string{"outcome"}),
		StartSymbolChecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "start_symbol_checks_total",
			Help:      "Start symbol detector evaluations",
		}, []string{"detected"}),

		PipelineRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Recording pipeline runs by result",
		}, []string{"result"}),
		PipelineDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_processing_seconds",
			Help:      "Duration of the processing phase",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}),
		TrainingSessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "training_sessions_total",
			Help:      "Training sessions by result",
		}, []string{"result"}),
		RefineFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refine_fallbacks_total",
			Help:      "Refinement failures answered with the raw sequence",
		}),

		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Result events by topic and status",
		}, []string{"topic", "status"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordConnected(on bool) {
	if m == nil {
		return
	}
	if on {
		m.StreamConnected.Set(1)
	} else {
		m.StreamConnected.Set(0)
	}
}

func (m *Metrics) RecordSample() {
	if m == nil {
		return
	}
	m.SamplesReceived.Inc()
}

func (m *Metrics) RecordStreamError(kind string) {
	if m == nil {
		return
	}
	m.StreamErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordHandshake(seconds float64) {
	if m == nil {
		return
	}
	m.HandshakeLatency.Observe(seconds)
}

// RecordSegmentation records one ProcessRecording call.
func (m *Metrics) RecordSegmentation(segments, subSegments, dropped int) {
	if m == nil {
		return
	}
	m.SegmentsProduced.Add(float64(segments))
	m.SubSegmentsProduced.Add(float64(subSegments))
	m.SamplesDropped.Add(float64(dropped))
}

// RecordClassification records one sub-segment outcome: "model", "fallback" or "error".
func (m *Metrics) RecordClassification(outcome string) {
	if m == nil {
		return
	}
	m.Classifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordStartSymbolCheck(detected bool) {
	if m == nil {
		return
	}
	label := "false"
	if detected {
		label = "true"
	}
	m.StartSymbolChecks.WithLabelValues(label).Inc()
}

func (m *Metrics) RecordPipelineRun(result string, seconds float64) {
	if m == nil {
		return
	}
	m.PipelineRuns.WithLabelValues(result).Inc()
	m.PipelineDuration.Observe(seconds)
}

func (m *Metrics) RecordTrainingSession(result string) {
	if m == nil {
		return
	}
	m.TrainingSessions.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordRefineFallback() {
	if m == nil {
		return
	}
	m.RefineFallbacks.Inc()
}

// RecordEventPublish counts one publish attempt. Disabled publishers record
// status "logged".
func (m *Metrics) RecordEventPublish(topic, status string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(topic, status).Inc()
}
