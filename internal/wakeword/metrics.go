package wakeword

import "time"

// Metrics receives pipeline counters. Implementations must be safe for
// concurrent use and must not block.
type Metrics interface {
	FrameReceived()
	FrameDropped()
	FrameProcessed()
	FeaturesExtracted(outcome string)
	InferenceCompleted(d time.Duration, confidence float64)
	InferenceFailed()
	DetectionAccepted(confidence float64)
	CallbackFailed()
	SetRunning(running bool)
}

type noopMetrics struct{}

func (noopMetrics) FrameReceived()                            {}
func (noopMetrics) FrameDropped()                             {}
func (noopMetrics) FrameProcessed()                           {}
func (noopMetrics) FeaturesExtracted(string)                  {}
func (noopMetrics) InferenceCompleted(time.Duration, float64) {}
func (noopMetrics) InferenceFailed()                          {}
func (noopMetrics) DetectionAccepted(float64)                 {}
func (noopMetrics) CallbackFailed()                           {}
func (noopMetrics) SetRunning(bool)                           {}
