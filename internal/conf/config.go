// Package conf provides configuration management for Jupiter.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jupiter-voice/jupiter/internal/errors"
	"github.com/jupiter-voice/jupiter/internal/logger"
)

// EnvPrefix is prepended to every environment override, e.g. JUPITER_WAKEWORD_THRESHOLD
const EnvPrefix = "JUPITER"

// Settings contains all configuration options for the Jupiter application.
type Settings struct {
	Debug bool // true to enable debug mode

	Audio     AudioSettings        // microphone capture
	Features  FeatureSettings      // MFCC front-end
	WakeWord  WakeWordSettings     // detector and model
	Logging   logger.LoggingConfig // structured logging
	Telemetry TelemetrySettings    // Prometheus metrics endpoint
	MQTT      MQTTSettings         // detection event publishing
	Clips     ClipSettings         // wake clip export
	Sentry    SentrySettings       // error telemetry
}

// AudioSettings contains settings for microphone capture.
type AudioSettings struct {
	Device       int // capture device index, -1 for the system default
	SampleRate   int // Hz
	FrameSize    int // samples per callback
	BufferFrames int // frames retained in the capture ring buffer
}

// FeatureSettings contains settings for MFCC feature extraction.
type FeatureSettings struct {
	NMFCC            int     // cepstral coefficients per frame
	NumFrames        int     // time steps in the feature tensor
	NFFT             int     // FFT window length, power of two
	HopLength        int     // samples between analysis windows
	NMels            int     // mel filterbank bands
	SilenceThreshold float64 // mean-square energy below which extraction is skipped
}

// WakeWordSettings contains detector and model settings.
type WakeWordSettings struct {
	ModelPath      string        // path to the .tflite model
	Threshold      float64       // per-prediction confidence threshold
	WindowSize     int           // smoothing window length
	RequiredStreak int           // consecutive high-confidence predictions before a trigger
	Cooldown       time.Duration // minimum interval between triggers
	QueueSize      int           // frame queue capacity
	PollInterval   time.Duration // processing goroutine dequeue timeout
	StopTimeout    time.Duration // bound on joining the processing goroutine
	ListenDebounce time.Duration // suppression window for ListenForWakeWord handlers
	Threads        int           // TFLite interpreter threads, 0 for runtime default
	XNNPACK        bool          // use the XNNPACK delegate
}

// TelemetrySettings controls the Prometheus metrics endpoint.
type TelemetrySettings struct {
	Enabled bool
	Listen  string // host:port for the /metrics endpoint
}

// MQTTSettings contains settings for publishing detection events.
type MQTTSettings struct {
	Enabled  bool
	Broker   string // tcp://host:port
	Topic    string
	Username string
	Password string
	ClientID string
	QoS      byte
	Retain   bool
}

// ClipSettings controls writing WAV clips of the audio around a detection.
type ClipSettings struct {
	Enabled bool
	Path    string
	MaxAge  time.Duration // clips older than this are pruned, 0 keeps everything
}

// SentrySettings controls Sentry error telemetry.
type SentrySettings struct {
	Enabled bool
	DSN     string
	Debug   bool
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
// configFile may be empty to search the default locations.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(configFile); err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Context("operation", "init_viper").
			Build()
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper registers defaults and env bindings and reads the config file, if any.
func initViper(configFile string) error {
	setDefaultConfig()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	for _, path := range GetDefaultConfigPaths() {
		viper.AddConfigPath(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			GetLogger().Debug("no config file found, using defaults")
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	GetLogger().Debug("loaded config file", logger.String("path", viper.ConfigFileUsed()))
	return nil
}

// GetSettings returns the most recently loaded settings, or nil before Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveYAMLConfig writes settings to configPath atomically.
// Comments and ordering of an existing file are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName) //nolint:errcheck // already renamed on success

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := moveFile(tempFileName, configPath); err != nil {
		return fmt.Errorf("error moving config file into place: %w", err)
	}

	return nil
}
