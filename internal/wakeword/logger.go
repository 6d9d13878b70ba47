package wakeword

import "github.com/jupiter-voice/jupiter/internal/logger"

const componentWakeWord = "wakeword"

// GetLogger returns the wakeword module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module(componentWakeWord)
}
