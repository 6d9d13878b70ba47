package wakeword

import (
	"time"

	"github.com/jupiter-voice/jupiter/internal/audiocore"
	"github.com/jupiter-voice/jupiter/internal/errors"
	"github.com/jupiter-voice/jupiter/internal/features"
)

// minWindowEntries is the number of predictions needed before any decision.
const minWindowEntries = 3

// Config holds the decision and pipeline parameters. The decision
// constants are tuned together; changing one shifts the detector's
// sensitivity and false-positive rate.
type Config struct {
	Threshold      float64       // per-prediction confidence threshold
	WindowSize     int           // recent predictions kept for smoothing
	RequiredStreak int           // consecutive above-threshold predictions
	Cooldown       time.Duration // minimum time between accepted detections

	QueueSize      int           // frame queue capacity
	PollInterval   time.Duration // processing loop dequeue timeout
	StopTimeout    time.Duration // bound on joining the processing goroutine
	ListenDebounce time.Duration // ListenForWakeWord handler suppression

	Features features.Config
	Audio    audiocore.Config
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:      0.85,
		WindowSize:     5,
		RequiredStreak: 2,
		Cooldown:       2 * time.Second,
		QueueSize:      100,
		PollInterval:   100 * time.Millisecond,
		StopTimeout:    2 * time.Second,
		ListenDebounce: time.Second,
		Features:       features.DefaultConfig(),
		Audio:          audiocore.DefaultConfig(),
	}
}

// Validate checks the detector parameters. Feature and audio settings are
// validated by their own constructors.
func (c Config) Validate() error {
	var msg string
	switch {
	case c.Threshold < 0 || c.Threshold > 1:
		msg = "threshold must be between 0 and 1"
	case c.WindowSize <= 0:
		msg = "window size must be positive"
	case c.RequiredStreak < 0:
		msg = "required streak must not be negative"
	case c.Cooldown < 0:
		msg = "cooldown must not be negative"
	case c.QueueSize <= 0:
		msg = "queue size must be positive"
	case c.PollInterval <= 0:
		msg = "poll interval must be positive"
	case c.StopTimeout <= 0:
		msg = "stop timeout must be positive"
	case c.ListenDebounce < 0:
		msg = "listen debounce must not be negative"
	default:
		return nil
	}

	return errors.Newf("invalid detector config: %s", msg).
		Component(componentWakeWord).
		Category(errors.CategoryValidation).
		Context("threshold", c.Threshold).
		Context("window_size", c.WindowSize).
		Build()
}
