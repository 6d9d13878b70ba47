// conf/validate.go

package conf

import (
	"fmt"
	"math/bits"
	"net"
	"net/url"
	"strings"

	"github.com/jupiter-voice/jupiter/internal/errors"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	var msgs []string

	msgs = append(msgs, validateAudioSettings(&settings.Audio)...)
	msgs = append(msgs, validateFeatureSettings(&settings.Features)...)
	msgs = append(msgs, validateWakeWordSettings(&settings.WakeWord)...)
	msgs = append(msgs, validateTelemetrySettings(&settings.Telemetry)...)
	msgs = append(msgs, validateMQTTSettings(&settings.MQTT)...)

	if settings.Clips.Enabled && strings.TrimSpace(settings.Clips.Path) == "" {
		msgs = append(msgs, "clips path is required when clip export is enabled")
	}
	if settings.Clips.MaxAge < 0 {
		msgs = append(msgs, "clips maxage must not be negative")
	}

	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		msgs = append(msgs, "sentry DSN is required when sentry is enabled")
	}

	if len(msgs) == 0 {
		return nil
	}

	return errors.New(ValidationError{Errors: msgs}).
		Component("configuration").
		Category(errors.CategoryValidation).
		Context("error_count", len(msgs)).
		Build()
}

func validateAudioSettings(a *AudioSettings) []string {
	var errs []string

	if a.Device < -1 {
		errs = append(errs, "audio device must be -1 (system default) or a device index")
	}
	if a.SampleRate <= 0 {
		errs = append(errs, fmt.Sprintf("audio sample rate must be positive, got %d", a.SampleRate))
	}
	if a.FrameSize <= 0 {
		errs = append(errs, fmt.Sprintf("audio frame size must be positive, got %d", a.FrameSize))
	}
	if a.BufferFrames <= 0 {
		errs = append(errs, fmt.Sprintf("audio buffer frames must be positive, got %d", a.BufferFrames))
	}

	return errs
}

func validateFeatureSettings(f *FeatureSettings) []string {
	var errs []string

	if f.NMFCC <= 0 {
		errs = append(errs, "features nmfcc must be positive")
	}
	if f.NumFrames <= 0 {
		errs = append(errs, "features numframes must be positive")
	}
	if f.NFFT <= 0 || bits.OnesCount(uint(f.NFFT)) != 1 {
		errs = append(errs, fmt.Sprintf("features nfft must be a power of two, got %d", f.NFFT))
	}
	if f.HopLength <= 0 {
		errs = append(errs, "features hoplength must be positive")
	}
	if f.NMels < f.NMFCC {
		errs = append(errs, fmt.Sprintf("features nmels (%d) must be at least nmfcc (%d)", f.NMels, f.NMFCC))
	}
	if f.SilenceThreshold < 0 {
		errs = append(errs, "features silence threshold must not be negative")
	}

	return errs
}

func validateWakeWordSettings(w *WakeWordSettings) []string {
	var errs []string

	if w.Threshold < 0 || w.Threshold > 1 {
		errs = append(errs, fmt.Sprintf("wakeword threshold must be between 0 and 1, got %g", w.Threshold))
	}
	if w.WindowSize <= 0 {
		errs = append(errs, "wakeword window size must be at least 1")
	}
	if w.RequiredStreak < 0 {
		errs = append(errs, "wakeword required streak must not be negative")
	}
	if w.Cooldown < 0 {
		errs = append(errs, "wakeword cooldown must not be negative")
	}
	if w.QueueSize <= 0 {
		errs = append(errs, "wakeword queue size must be at least 1")
	}
	if w.PollInterval <= 0 {
		errs = append(errs, "wakeword poll interval must be positive")
	}
	if w.StopTimeout <= 0 {
		errs = append(errs, "wakeword stop timeout must be positive")
	}
	if w.ListenDebounce < 0 {
		errs = append(errs, "wakeword listen debounce must not be negative")
	}
	if w.Threads < 0 {
		errs = append(errs, "wakeword threads must be at least 0")
	}

	return errs
}

func validateTelemetrySettings(t *TelemetrySettings) []string {
	if !t.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(t.Listen); err != nil {
		return []string{fmt.Sprintf("telemetry listen address %q is invalid: %v", t.Listen, err)}
	}
	return nil
}

func validateMQTTSettings(m *MQTTSettings) []string {
	if !m.Enabled {
		return nil
	}

	var errs []string

	if m.Broker == "" {
		errs = append(errs, "MQTT broker URL is required when MQTT is enabled")
	} else if u, err := url.Parse(m.Broker); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "MQTT broker must be a URL like tcp://host:1883")
	}
	if m.Topic == "" {
		errs = append(errs, "MQTT topic is required when MQTT is enabled")
	}
	if m.QoS > 2 {
		errs = append(errs, fmt.Sprintf("MQTT QoS must be 0, 1 or 2, got %d", m.QoS))
	}

	return errs
}
