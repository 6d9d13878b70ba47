package conf

import "github.com/jupiter-voice/jupiter/internal/logger"

// GetLogger returns the config package logger scoped to the config module.
// It is fetched each call because the global logger is replaced after
// configuration has been loaded.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
