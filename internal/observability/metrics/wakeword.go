package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WakewordMetrics tracks the capture-to-detection pipeline.
type WakewordMetrics struct {
	FramesReceived    prometheus.Counter
	FramesDropped     prometheus.Counter
	FramesProcessed   prometheus.Counter
	FeatureOutcomes   *prometheus.CounterVec
	InferenceDuration prometheus.Histogram
	InferenceErrors   prometheus.Counter
	Confidence        prometheus.Histogram
	Detections        prometheus.Counter
	LastDetection     prometheus.Gauge
	CallbackFailures  prometheus.Counter
	Running           prometheus.Gauge
}

// NewWakewordMetrics creates the pipeline collectors and registers them.
func NewWakewordMetrics(registry prometheus.Registerer) (*WakewordMetrics, error) {
	m := &WakewordMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register wakeword metrics: %w", err)
	}
	return m, nil
}

func (m *WakewordMetrics) initMetrics() {
	m.FramesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "frames_received_total",
		Help:      "Audio frames offered to the detector queue",
	})
	m.FramesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "frames_dropped_total",
		Help:      "Audio frames discarded because the detector queue was full",
	})
	m.FramesProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "frames_processed_total",
		Help:      "Audio frames taken off the queue by the processing goroutine",
	})
	m.FeatureOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "feature_extractions_total",
		Help:      "Feature extraction calls by outcome",
	}, []string{"outcome"})
	m.InferenceDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "inference_duration_seconds",
		Help:      "Model inference latency",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	})
	m.InferenceErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "inference_errors_total",
		Help:      "Model inference failures",
	})
	m.Confidence = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "prediction_confidence",
		Help:      "Distribution of raw model confidences",
		Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
	})
	m.Detections = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "detections_total",
		Help:      "Accepted wake-word detections",
	})
	m.LastDetection = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "last_detection_confidence",
		Help:      "Smoothed confidence of the most recent accepted detection",
	})
	m.CallbackFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "callback_failures_total",
		Help:      "Detection callbacks that panicked",
	})
	m.Running = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "detector_running",
		Help:      "1 while the detector is started",
	})

	// expose every outcome from the first scrape
	for _, o := range []string{OutcomeWarmup, OutcomeSilent, OutcomeComputed, OutcomeFailed} {
		m.FeatureOutcomes.WithLabelValues(o)
	}
}

func (m *WakewordMetrics) FrameReceived()   { m.FramesReceived.Inc() }
func (m *WakewordMetrics) FrameDropped()    { m.FramesDropped.Inc() }
func (m *WakewordMetrics) FrameProcessed()  { m.FramesProcessed.Inc() }
func (m *WakewordMetrics) InferenceFailed() { m.InferenceErrors.Inc() }
func (m *WakewordMetrics) CallbackFailed()  { m.CallbackFailures.Inc() }

// FeaturesExtracted counts one extraction by outcome label.
func (m *WakewordMetrics) FeaturesExtracted(outcome string) {
	m.FeatureOutcomes.WithLabelValues(outcome).Inc()
}

// InferenceCompleted records latency and the raw confidence.
func (m *WakewordMetrics) InferenceCompleted(d time.Duration, confidence float64) {
	m.InferenceDuration.Observe(d.Seconds())
	m.Confidence.Observe(confidence)
}

// DetectionAccepted counts a detection and records its confidence.
func (m *WakewordMetrics) DetectionAccepted(confidence float64) {
	m.Detections.Inc()
	m.LastDetection.Set(confidence)
}

// SetRunning sets the running gauge.
func (m *WakewordMetrics) SetRunning(running bool) {
	if running {
		m.Running.Set(1)
	} else {
		m.Running.Set(0)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *WakewordMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.FramesReceived
	ch <- m.FramesDropped
	ch <- m.FramesProcessed
	m.FeatureOutcomes.Collect(ch)
	ch <- m.InferenceDuration
	ch <- m.InferenceErrors
	ch <- m.Confidence
	ch <- m.Detections
	ch <- m.LastDetection
	ch <- m.CallbackFailures
	ch <- m.Running
}

// Describe implements the prometheus.Collector interface.
func (m *WakewordMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.FramesReceived.Desc()
	ch <- m.FramesDropped.Desc()
	ch <- m.FramesProcessed.Desc()
	m.FeatureOutcomes.Describe(ch)
	ch <- m.InferenceDuration.Desc()
	ch <- m.InferenceErrors.Desc()
	ch <- m.Confidence.Desc()
	ch <- m.Detections.Desc()
	ch <- m.LastDetection.Desc()
	ch <- m.CallbackFailures.Desc()
	ch <- m.Running.Desc()
}
