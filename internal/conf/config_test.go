package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupiter-voice/jupiter/internal/errors"
)

// viper state is global, so these tests do not run in parallel.

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	resetViper(t)

	settings, err := Load(writeConfig(t, "debug: false\n"))
	require.NoError(t, err)

	assert.Equal(t, -1, settings.Audio.Device)
	assert.Equal(t, 16000, settings.Audio.SampleRate)
	assert.Equal(t, 512, settings.Audio.FrameSize)

	assert.Equal(t, 13, settings.Features.NMFCC)
	assert.Equal(t, 101, settings.Features.NumFrames)
	assert.Equal(t, 2048, settings.Features.NFFT)
	assert.Equal(t, 160, settings.Features.HopLength)
	assert.InDelta(t, 0.005, settings.Features.SilenceThreshold, 1e-12)

	assert.InDelta(t, 0.85, settings.WakeWord.Threshold, 1e-12)
	assert.Equal(t, 5, settings.WakeWord.WindowSize)
	assert.Equal(t, 2, settings.WakeWord.RequiredStreak)
	assert.Equal(t, 2*time.Second, settings.WakeWord.Cooldown)
	assert.Equal(t, 100, settings.WakeWord.QueueSize)
	assert.Equal(t, 100*time.Millisecond, settings.WakeWord.PollInterval)
	assert.Equal(t, 2*time.Second, settings.WakeWord.StopTimeout)
	assert.Equal(t, time.Second, settings.WakeWord.ListenDebounce)

	require.NotNil(t, settings.Logging.Console)
	assert.True(t, settings.Logging.Console.Enabled)
	assert.Equal(t, "info", settings.Logging.DefaultLevel)
	require.NotNil(t, settings.Logging.FileOutput)
	assert.Equal(t, 32*1024, settings.Logging.FileOutput.BufferSize)
	assert.Equal(t, 5*time.Second, settings.Logging.FileOutput.FlushInterval)
	assert.Equal(t, 128, settings.Features.NMels)

	assert.Same(t, settings, GetSettings())
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	resetViper(t)

	path := writeConfig(t, `
wakeword:
  modelpath: models/hey_jupiter.tflite
  threshold: 0.7
  cooldown: 3s
audio:
  device: 2
logging:
  default_level: debug
mqtt:
  enabled: true
  broker: tcp://broker.local:1883
  topic: home/jupiter
`)

	settings, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "models/hey_jupiter.tflite", settings.WakeWord.ModelPath)
	assert.InDelta(t, 0.7, settings.WakeWord.Threshold, 1e-12)
	assert.Equal(t, 3*time.Second, settings.WakeWord.Cooldown)
	assert.Equal(t, 2, settings.Audio.Device)
	assert.Equal(t, "debug", settings.Logging.DefaultLevel)
	assert.True(t, settings.MQTT.Enabled)
	assert.Equal(t, "home/jupiter", settings.MQTT.Topic)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	resetViper(t)
	t.Setenv("JUPITER_WAKEWORD_THRESHOLD", "0.6")
	t.Setenv("JUPITER_AUDIO_FRAMESIZE", "1024")

	settings, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.InDelta(t, 0.6, settings.WakeWord.Threshold, 1e-12)
	assert.Equal(t, 1024, settings.Audio.FrameSize)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	resetViper(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestValidateSettings(t *testing.T) {
	valid := func() *Settings {
		return &Settings{
			Audio:    AudioSettings{Device: -1, SampleRate: 16000, FrameSize: 512, BufferFrames: 100},
			Features: FeatureSettings{NMFCC: 13, NumFrames: 101, NFFT: 2048, HopLength: 160, NMels: 128, SilenceThreshold: 0.005},
			WakeWord: WakeWordSettings{
				Threshold: 0.85, WindowSize: 5, RequiredStreak: 2, Cooldown: 2 * time.Second,
				QueueSize: 100, PollInterval: 100 * time.Millisecond, StopTimeout: 2 * time.Second,
				ListenDebounce: time.Second,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"valid", func(*Settings) {}, ""},
		{"threshold above one", func(s *Settings) { s.WakeWord.Threshold = 1.5 }, "threshold"},
		{"nfft not power of two", func(s *Settings) { s.Features.NFFT = 1000 }, "power of two"},
		{"nmels below nmfcc", func(s *Settings) { s.Features.NMels = 8 }, "nmels"},
		{"zero window", func(s *Settings) { s.WakeWord.WindowSize = 0 }, "window size"},
		{"mqtt without broker", func(s *Settings) {
			s.MQTT = MQTTSettings{Enabled: true, Topic: "t"}
		}, "broker"},
		{"mqtt bad qos", func(s *Settings) {
			s.MQTT = MQTTSettings{Enabled: true, Broker: "tcp://b:1883", Topic: "t", QoS: 3}
		}, "QoS"},
		{"sentry without dsn", func(s *Settings) { s.Sentry.Enabled = true }, "DSN"},
		{"telemetry bad listen", func(s *Settings) {
			s.Telemetry = TelemetrySettings{Enabled: true, Listen: "nope"}
		}, "listen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := valid()
			tt.mutate(s)

			err := ValidateSettings(s)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

			var ve ValidationError
			require.True(t, errors.As(err, &ve))
			assert.NotEmpty(t, ve.Errors)
		})
	}
}

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	resetViper(t)

	settings, err := Load(writeConfig(t, "wakeword:\n  threshold: 0.9\n"))
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, SaveYAMLConfig(out, settings))

	viper.Reset()
	reloaded, err := Load(out)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, reloaded.WakeWord.Threshold, 1e-12)
	assert.Equal(t, settings.Features, reloaded.Features)
}
