package mqtt

import (
	"context"
	"net"
	"net/url"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/jupiter-voice/jupiter/internal/errors"
	"github.com/jupiter-voice/jupiter/internal/logger"
	"github.com/jupiter-voice/jupiter/internal/observability/metrics"
)

// client implements the Client interface on paho.
type client struct {
	config          Config
	internalClient  pahomqtt.Client
	lastConnAttempt time.Time
	mu              sync.Mutex
	metrics         *metrics.MQTTMetrics
	log             logger.Logger
}

// NewClient creates a new MQTT client with the provided configuration.
func NewClient(cfg Config, m *metrics.MQTTMetrics) Client {
	return &client{
		config:  cfg,
		metrics: m,
		log:     GetLogger().With(logger.String("broker", cfg.Broker)),
	}
}

// Connect resolves the broker host and connects. Attempts closer together
// than the reconnect cooldown are refused.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if since := time.Since(c.lastConnAttempt); since < c.config.ReconnectCooldown {
		return errors.Newf("connection attempt too recent, last attempt was %v ago", since).
			Component(componentMQTT).
			Category(errors.CategoryMQTTConnection).
			Build()
	}
	c.lastConnAttempt = time.Now()

	u, err := url.Parse(c.config.Broker)
	if err != nil || u.Hostname() == "" {
		return errors.Newf("invalid broker URL %q", c.config.Broker).
			Component(componentMQTT).
			Category(errors.CategoryConfiguration).
			Build()
	}

	host := u.Hostname()
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			c.metrics.IncrementErrors()
			return errors.New(err).
				Component(componentMQTT).
				Category(errors.CategoryMQTTConnection).
				Context("operation", "resolve_host").
				Context("host", host).
				Build()
		}
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)

	c.internalClient = pahomqtt.NewClient(opts)

	token := c.internalClient.Connect()
	if !waitToken(ctx, token, c.config.ConnectTimeout) {
		c.metrics.IncrementErrors()
		return errors.Newf("connection timeout").
			Component(componentMQTT).
			Category(errors.CategoryTimeout).
			Timing("mqtt-connect", c.config.ConnectTimeout).
			Build()
	}
	if err := token.Error(); err != nil {
		c.metrics.IncrementErrors()
		return errors.New(err).
			Component(componentMQTT).
			Category(errors.CategoryMQTTConnection).
			Context("operation", "connect").
			Build()
	}

	c.metrics.UpdateConnectionStatus(true)
	return nil
}

// Publish sends payload to topic with the configured QoS and retain flag.
func (c *client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.IsConnected() {
		return errors.Newf("not connected to MQTT broker").
			Component(componentMQTT).
			Category(errors.CategoryMQTTConnection).
			Build()
	}

	timer := c.metrics.StartPublishTimer()
	defer timer.ObserveDuration()

	token := c.internalClient.Publish(topic, c.config.QoS, c.config.Retain, payload)
	if !waitToken(ctx, token, c.config.PublishTimeout) {
		c.metrics.IncrementErrors()
		return errors.Newf("publish timeout").
			Component(componentMQTT).
			Category(errors.CategoryTimeout).
			Context("topic", topic).
			Build()
	}
	if err := token.Error(); err != nil {
		c.metrics.IncrementErrors()
		return errors.New(err).
			Component(componentMQTT).
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}

	c.metrics.IncrementMessagesDelivered()
	c.metrics.ObserveMessageSize(float64(len(payload)))
	return nil
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *client) IsConnected() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect closes the connection to the MQTT broker.
func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.internalClient != nil && c.internalClient.IsConnected() {
		c.internalClient.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
		c.metrics.UpdateConnectionStatus(false)
	}
}

func (c *client) onConnect(pahomqtt.Client) {
	c.log.Info("connected to MQTT broker")
	c.metrics.UpdateConnectionStatus(true)
}

func (c *client) onConnectionLost(_ pahomqtt.Client, err error) {
	c.log.Warn("connection to MQTT broker lost", logger.Error(err))
	c.metrics.UpdateConnectionStatus(false)
	c.metrics.IncrementErrors()
}

func (c *client) onReconnecting(pahomqtt.Client, *pahomqtt.ClientOptions) {
	c.metrics.IncrementReconnectAttempts()
	c.log.Debug("reconnecting to MQTT broker")
}

// waitToken waits for the token until timeout or ctx is done.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
