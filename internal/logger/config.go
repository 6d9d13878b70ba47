package logger

import "time"

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	DefaultLevel string            `yaml:"default_level" mapstructure:"default_level"` // default log level for all modules
	Timezone     string            `yaml:"timezone" mapstructure:"timezone"`           // "Local", "UTC", or IANA name like "Europe/Helsinki"
	Console      *ConsoleOutput    `yaml:"console" mapstructure:"console"`
	FileOutput   *FileOutput       `yaml:"file_output" mapstructure:"file_output"`
	ModuleLevels map[string]string `yaml:"module_levels" mapstructure:"module_levels"` // per-module log levels, e.g. features: trace
}

// ConsoleOutput represents console logging configuration.
// Console output is text without timestamps; journald or Docker adds them.
type ConsoleOutput struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Level   string `yaml:"level" mapstructure:"level"`
}

// FileOutput represents JSON file logging configuration.
type FileOutput struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	Path          string        `yaml:"path" mapstructure:"path"`
	Level         string        `yaml:"level" mapstructure:"level"`
	BufferSize    int           `yaml:"buffer_size" mapstructure:"buffer_size"`       // bytes; 0 uses DefaultBufferSize
	FlushInterval time.Duration `yaml:"flush_interval" mapstructure:"flush_interval"` // 0 uses DefaultFlushInterval
}

// writerOptions maps the file settings onto BufferedFileWriter options.
func (f *FileOutput) writerOptions() []BufferedWriterOption {
	var opts []BufferedWriterOption
	if f.BufferSize > 0 {
		opts = append(opts, WithBufferSize(f.BufferSize))
	}
	if f.FlushInterval > 0 {
		opts = append(opts, WithFlushInterval(f.FlushInterval))
	}
	return opts
}

// Default values for logging configuration.
// These match the defaults in conf/defaults.go.
const (
	DefaultLogLevel       = "info"
	DefaultLogPath        = "logs/jupiter.log"
	DefaultConsoleEnabled = true
	DefaultFileEnabled    = false
)

// applyConfigDefaults fills nil sections so a partial config still produces console output.
func applyConfigDefaults(cfg *LoggingConfig) {
	if cfg == nil {
		return
	}

	if cfg.DefaultLevel == "" {
		cfg.DefaultLevel = DefaultLogLevel
	}

	if cfg.Console == nil {
		cfg.Console = &ConsoleOutput{
			Enabled: DefaultConsoleEnabled,
			Level:   cfg.DefaultLevel,
		}
	}

	if cfg.FileOutput == nil {
		cfg.FileOutput = &FileOutput{
			Enabled: DefaultFileEnabled,
			Path:    DefaultLogPath,
			Level:   cfg.DefaultLevel,
		}
	}
}
