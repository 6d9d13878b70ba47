package mqtt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupiter-voice/jupiter/internal/errors"
)

func TestClientRejectsInvalidBroker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Broker = "::not a url"
	c := NewClient(cfg, newTestMetrics(t))

	err := c.Connect(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	assert.False(t, c.IsConnected())
}

func TestClientConnectCooldown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Broker = "::not a url"
	cfg.ReconnectCooldown = time.Hour
	c := NewClient(cfg, newTestMetrics(t))

	require.Error(t, c.Connect(t.Context()))
	err := c.Connect(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTConnection))
}

func TestClientPublishRequiresConnection(t *testing.T) {
	c := NewClient(DefaultConfig(), newTestMetrics(t))

	err := c.Publish(context.Background(), "t", []byte("{}"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTConnection))

	// no-op without a connection
	c.Disconnect()
}
