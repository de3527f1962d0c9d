package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/skypro1111/audio-accuracy-checker/internal/preprocess"
)

// Metrics contains all Prometheus metrics for an evaluation run
type Metrics struct {
	registry *prometheus.Registry

	// Annotation conversion metrics
	RecordsConverted   prometheus.Counter
	AnnotationsEmitted prometheus.Counter
	ContentErrors      prometheus.Counter
	ParseErrors        prometheus.Counter
	ConversionProgress prometheus.Gauge

	// Preprocessing metrics
	SamplesProcessed *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	StageErrors      *prometheus.CounterVec
	ClipsPerSample   prometheus.Histogram

	// Status server metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics on a private registry so that parallel runs
// and tests do not collide on the global one
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RecordsConverted: factory.NewCounter(prometheus.CounterOpts{
			Name: "accuracy_manifest_records_total",
			Help: "Total number of manifest records parsed",
		}),
		AnnotationsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "accuracy_annotations_emitted_total",
			Help: "Total number of annotations produced after fold filtering",
		}),
		ContentErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "accuracy_content_errors_total",
			Help: "Total number of annotated audio files missing from disk",
		}),
		ParseErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "accuracy_manifest_parse_errors_total",
			Help: "Total number of malformed manifest records",
		}),
		ConversionProgress: factory.NewGauge(prometheus.GaugeOpts{
			Name: "accuracy_conversion_progress_percent",
			Help: "Percent of manifest records converted in the current run",
		}),

		SamplesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "accuracy_samples_processed_total",
			Help: "Total number of samples run through the preprocessing pipeline",
		}, []string{"status"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "accuracy_preprocess_stage_duration_seconds",
			Help:    "Time spent in each preprocessing stage per sample",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 100us to ~1.6s
		}, []string{"stage"}),
		StageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "accuracy_preprocess_stage_errors_total",
			Help: "Total number of preprocessing failures by stage and reason",
		}, []string{"stage", "reason"}),
		ClipsPerSample: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "accuracy_clips_per_sample",
			Help:    "Number of inference units produced per sample by the clipper",
			Buckets: prometheus.LinearBuckets(0, 1, 11), // 0 to 10
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "accuracy_http_requests_total",
			Help: "Total number of status server requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "accuracy_http_request_duration_seconds",
			Help:    "Duration of status server requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "accuracy_http_errors_total",
			Help: "Total number of status server errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// Registry returns the registry all run metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordConversion records the outcome of an annotation conversion
func (m *Metrics) RecordConversion(records, annotations, contentErrors int) {
	m.RecordsConverted.Add(float64(records))
	m.AnnotationsEmitted.Add(float64(annotations))
	m.ContentErrors.Add(float64(contentErrors))
	m.ConversionProgress.Set(100)
}

// RecordParseError increments the parse errors counter
func (m *Metrics) RecordParseError() {
	m.ParseErrors.Inc()
}

// SetConversionProgress sets the conversion progress gauge
func (m *Metrics) SetConversionProgress(percent float64) {
	m.ConversionProgress.Set(percent)
}

// RecordStage implements preprocess.Recorder
func (m *Metrics) RecordStage(stage string, durationSeconds float64, err error) {
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
	if err != nil {
		m.StageErrors.WithLabelValues(stage, errorReason(err)).Inc()
	}
}

// RecordSample implements preprocess.Recorder
func (m *Metrics) RecordSample(clips int, err error) {
	if err != nil {
		m.SamplesProcessed.WithLabelValues("failed").Inc()
		return
	}
	m.SamplesProcessed.WithLabelValues("ok").Inc()
	m.ClipsPerSample.Observe(float64(clips))
}

// RecordLoadFailure counts a sample whose audio could not be loaded
func (m *Metrics) RecordLoadFailure() {
	m.SamplesProcessed.WithLabelValues("load_failed").Inc()
}

// RecordHTTPRequest records a status server request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records a status server error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}

// WriteTextfile writes the current metric values in the Prometheus text
// format, suitable for the node exporter textfile collector
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, preprocess.ErrMissingSampleRate):
		return "missing_sample_rate"
	case errors.Is(err, preprocess.ErrNoAudio):
		return "no_audio"
	default:
		return "other"
	}
}

var _ preprocess.Recorder = (*Metrics)(nil)
