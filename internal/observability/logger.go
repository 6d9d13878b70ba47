// Package observability exposes the Prometheus metrics endpoint.
package observability

import "github.com/jupiter-voice/jupiter/internal/logger"

// GetLogger returns the telemetry module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}
