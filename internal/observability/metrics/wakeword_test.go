package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func histogramCount(t *testing.T, h prometheus.Histogram) uint64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, h.Write(&m))
	return m.GetHistogram().GetSampleCount()
}

func TestWakewordMetricsRecord(t *testing.T) {
	t.Parallel()

	m, err := NewWakewordMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.FrameReceived()
	m.FrameReceived()
	m.FrameDropped()
	m.FrameProcessed()
	m.FeaturesExtracted(OutcomeComputed)
	m.FeaturesExtracted(OutcomeComputed)
	m.FeaturesExtracted(OutcomeSilent)
	m.InferenceCompleted(3*time.Millisecond, 0.7)
	m.InferenceFailed()
	m.DetectionAccepted(0.91)
	m.CallbackFailed()
	m.SetRunning(true)

	assert.InDelta(t, 2, counterValue(t, m.FramesReceived), 0)
	assert.InDelta(t, 1, counterValue(t, m.FramesDropped), 0)
	assert.InDelta(t, 1, counterValue(t, m.FramesProcessed), 0)
	assert.InDelta(t, 2, counterValue(t, m.FeatureOutcomes.WithLabelValues(OutcomeComputed)), 0)
	assert.InDelta(t, 1, counterValue(t, m.FeatureOutcomes.WithLabelValues(OutcomeSilent)), 0)
	assert.InDelta(t, 0, counterValue(t, m.FeatureOutcomes.WithLabelValues(OutcomeWarmup)), 0)
	assert.Equal(t, uint64(1), histogramCount(t, m.InferenceDuration))
	assert.Equal(t, uint64(1), histogramCount(t, m.Confidence))
	assert.InDelta(t, 1, counterValue(t, m.InferenceErrors), 0)
	assert.InDelta(t, 1, counterValue(t, m.Detections), 0)
	assert.InDelta(t, 0.91, gaugeValue(t, m.LastDetection), 1e-9)
	assert.InDelta(t, 1, counterValue(t, m.CallbackFailures), 0)
	assert.InDelta(t, 1, gaugeValue(t, m.Running), 0)

	m.SetRunning(false)
	assert.InDelta(t, 0, gaugeValue(t, m.Running), 0)
}

func TestWakewordMetricsOutcomesPresentBeforeUse(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewWakewordMetrics(registry)
	require.NoError(t, err)

	families, err := registry.Gather()
	require.NoError(t, err)

	for _, f := range families {
		if f.GetName() == "jupiter_feature_extractions_total" {
			assert.Len(t, f.GetMetric(), 4)
			return
		}
	}
	t.Fatal("feature extraction counter not gathered")
}

func TestWakewordMetricsDoubleRegistration(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewWakewordMetrics(registry)
	require.NoError(t, err)
	_, err = NewWakewordMetrics(registry)
	assert.Error(t, err)
}

func TestMQTTMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMQTTMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.UpdateConnectionStatus(true)
	m.IncrementMessagesDelivered()
	m.IncrementErrors()
	m.IncrementDropped()
	m.IncrementReconnectAttempts()
	m.ObserveMessageSize(120)
	m.StartPublishTimer().ObserveDuration()

	assert.InDelta(t, 1, gaugeValue(t, m.ConnectionStatus), 0)
	assert.Positive(t, gaugeValue(t, m.LastConnectTime))
	assert.InDelta(t, 1, counterValue(t, m.MessagesDelivered), 0)
	assert.InDelta(t, 1, counterValue(t, m.Errors), 0)
	assert.InDelta(t, 1, counterValue(t, m.Dropped), 0)
	assert.InDelta(t, 1, counterValue(t, m.ReconnectAttempts), 0)
	assert.Equal(t, uint64(1), histogramCount(t, m.MessageSize))
	assert.Equal(t, uint64(1), histogramCount(t, m.PublishLatency))

	m.UpdateConnectionStatus(false)
	assert.InDelta(t, 0, gaugeValue(t, m.ConnectionStatus), 0)
}
