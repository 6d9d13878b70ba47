package model

import "github.com/jupiter-voice/jupiter/internal/logger"

const componentModel = "model"

// GetLogger returns the model module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module(componentModel)
}
