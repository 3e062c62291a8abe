package mqtt

import (
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/boguslaw-wojcik/zwave-bridge/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang with bridge-specific functionality.
//
// It provides connection management, publishing, subscription handling with
// automatic re-subscription after reconnects, and LWT-based offline
// detection.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig

	// subscriptions tracks active subscriptions for restoration on reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	connected bool
	connMu    sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked in separate goroutines by the paho library and
// should not block for extended periods.
type MessageHandler func(topic string, payload []byte)

// Connect establishes a connection to the MQTT broker.
//
// It configures LWT for offline detection, auto-reconnect with exponential
// backoff, and publishes an online status message once connected. Options
// run after the defaults and may override them.
func Connect(cfg config.MQTTConfig, options ...Option) (*Client, error) {
	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)
	for _, opt := range options {
		opt(opts)
	}

	c := &Client{
		cfg:           cfg,
		options:       opts,
		subscriptions: make(map[string]subscription),
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	c.client = pahomqtt.NewClient(opts)

	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return c, nil
}

// handleConnect runs on every successful (re)connection.
// It marks the client connected, restores tracked subscriptions and
// publishes the online status.
func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	c.restoreSubscriptions()

	payload := buildOnlinePayload(c.cfg.Broker.ClientID)
	token := c.client.Publish(Topics{}.SystemStatus(), 1, true, payload)
	if !token.WaitTimeout(defaultTokenTimeout) || token.Error() != nil {
		c.logWarn("failed to publish online status", "error", token.Error())
	}
}

// handleDisconnect runs when the connection is lost unexpectedly.
func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.logWarn("connection lost, paho will reconnect", "error", err)
}

// restoreSubscriptions re-subscribes all tracked topics after a reconnect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	subs := make([]subscription, 0, len(c.subscriptions))
	for _, s := range c.subscriptions {
		subs = append(subs, s)
	}
	c.subMu.RUnlock()

	for _, s := range subs {
		token := c.client.Subscribe(s.topic, s.qos, c.wrapHandler(s.handler))
		if !token.WaitTimeout(defaultTokenTimeout) || token.Error() != nil {
			c.logError("failed to restore subscription", "topic", s.topic, "error", token.Error())
		}
	}
}

// wrapHandler adapts a MessageHandler to paho's callback signature with
// panic recovery, so one misbehaving handler cannot kill the client.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.logError("message handler panic", "topic", msg.Topic(), "panic", fmt.Sprintf("%v", r))
			}
		}()
		handler(msg.Topic(), msg.Payload())
	}
}

// IsConnected returns true if connected to the broker.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// Disconnect closes the connection gracefully.
//
// It publishes an offline status message before disconnecting so subscribers
// can distinguish shutdown from crash (which triggers the LWT instead).
func (c *Client) Disconnect(quiesce uint) {
	if c.IsConnected() {
		payload := buildOfflinePayload(c.cfg.Broker.ClientID)
		token := c.client.Publish(Topics{}.SystemStatus(), 1, true, payload)
		token.WaitTimeout(defaultTokenTimeout)
	}

	if quiesce == 0 {
		quiesce = defaultDisconnectQuiesce
	}
	c.client.Disconnect(quiesce)

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()
}

// SetLogger sets the logger for connection events.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) logError(msg string, args ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, args...)
	}
}

func (c *Client) logWarn(msg string, args ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, args...)
	}
}
