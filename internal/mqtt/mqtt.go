// Package mqtt publishes wake-word detection events to an MQTT broker.
package mqtt

import (
	"context"
	"time"

	"github.com/jupiter-voice/jupiter/internal/logger"
)

// Client defines the interface for MQTT client operations.
type Client interface {
	// Connect attempts to connect to the MQTT broker.
	Connect(ctx context.Context) error

	// Publish sends payload to topic. It fails when the client is not connected.
	Publish(ctx context.Context, topic string, payload []byte) error

	// IsConnected returns true if the client is currently connected to the MQTT broker.
	IsConnected() bool

	// Disconnect closes the connection to the MQTT broker.
	Disconnect()
}

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker            string
	ClientID          string
	Username          string
	Password          string
	Topic             string
	QoS               byte
	Retain            bool
	ReconnectCooldown time.Duration
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// DefaultConfig returns a Config with reasonable default values
func DefaultConfig() Config {
	return Config{
		ReconnectCooldown: 5 * time.Second,
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
	}
}

const componentMQTT = "mqtt"

// GetLogger returns the mqtt module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module(componentMQTT)
}
