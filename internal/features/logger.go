package features

import "github.com/jupiter-voice/jupiter/internal/logger"

const componentFeatures = "features"

// GetLogger returns the features module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module(componentFeatures)
}
