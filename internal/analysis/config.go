// Package analysis assembles the capture, detection and event consumers
// into a running wake-word listener.
package analysis

import (
	"github.com/jupiter-voice/jupiter/internal/audiocore"
	"github.com/jupiter-voice/jupiter/internal/audiocore/processors"
	"github.com/jupiter-voice/jupiter/internal/conf"
	"github.com/jupiter-voice/jupiter/internal/features"
	"github.com/jupiter-voice/jupiter/internal/model"
	"github.com/jupiter-voice/jupiter/internal/mqtt"
	"github.com/jupiter-voice/jupiter/internal/wakeword"
)

// FeatureConfig maps settings to the extractor configuration. The analysis
// sample rate always follows the capture rate.
func FeatureConfig(s *conf.Settings) features.Config {
	return features.Config{
		SampleRate:       s.Audio.SampleRate,
		NMFCC:            s.Features.NMFCC,
		NumFrames:        s.Features.NumFrames,
		NFFT:             s.Features.NFFT,
		HopLength:        s.Features.HopLength,
		NMels:            s.Features.NMels,
		SilenceThreshold: s.Features.SilenceThreshold,
	}
}

// DetectorConfig maps settings to the detector configuration.
func DetectorConfig(s *conf.Settings) wakeword.Config {
	return wakeword.Config{
		Threshold:      s.WakeWord.Threshold,
		WindowSize:     s.WakeWord.WindowSize,
		RequiredStreak: s.WakeWord.RequiredStreak,
		Cooldown:       s.WakeWord.Cooldown,
		QueueSize:      s.WakeWord.QueueSize,
		PollInterval:   s.WakeWord.PollInterval,
		StopTimeout:    s.WakeWord.StopTimeout,
		ListenDebounce: s.WakeWord.ListenDebounce,
		Features:       FeatureConfig(s),
		Audio: audiocore.Config{
			DeviceIndex: s.Audio.Device,
			Format: audiocore.AudioFormat{
				SampleRate: s.Audio.SampleRate,
				Channels:   1,
				FrameSize:  s.Audio.FrameSize,
			},
			BufferFrames: s.Audio.BufferFrames,
			PeakTarget:   processors.DefaultPeakTarget,
		},
	}
}

// ModelOptions maps settings to model loading options.
func ModelOptions(s *conf.Settings) model.Options {
	return model.Options{
		InputShape: FeatureConfig(s).Shape(),
		Threads:    s.WakeWord.Threads,
		XNNPACK:    s.WakeWord.XNNPACK,
	}
}

// MQTTConfig maps settings to the MQTT client configuration. An empty client
// ID is replaced with one derived from instanceID.
func MQTTConfig(s *conf.Settings, instanceID string) mqtt.Config {
	cfg := mqtt.DefaultConfig()
	cfg.Broker = s.MQTT.Broker
	cfg.ClientID = s.MQTT.ClientID
	if cfg.ClientID == "" {
		cfg.ClientID = "jupiter-" + instanceID
	}
	cfg.Username = s.MQTT.Username
	cfg.Password = s.MQTT.Password
	cfg.Topic = s.MQTT.Topic
	cfg.QoS = s.MQTT.QoS
	cfg.Retain = s.MQTT.Retain
	return cfg
}
