package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-media/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang for the media server's presence and
// catalog notifications.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - An announced device is announced again after every reconnect.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig
	device  Device

	// connected tracks current connection state.
	connected bool
	connMu    sync.RWMutex

	// announced is true between Announce and Withdraw.
	announced       bool
	presentationURL string
	announceMu      sync.Mutex

	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Connect establishes a connection to the MQTT broker.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth, TLS)
//  2. Configures Last Will and Testament on the device status topic
//  3. Sets up auto-reconnect with exponential backoff
//  4. Attempts initial connection with timeout
//
// The device is not announced until Announce is called, normally once
// the UPnP device is advertised.
//
// Parameters:
//   - cfg: MQTT configuration from config.yaml
//   - dev: Identity of the media server in status messages
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: If initial connection fails within timeout
func Connect(cfg config.MQTTConfig, dev Device) (*Client, error) {
	if dev.UDN == "" {
		return nil, ErrNoDevice
	}
	opts := buildClientOptions(cfg)
	configureLWT(opts, dev)

	c := &Client{
		cfg:     cfg,
		options: opts,
		device:  dev,
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

	// The OnConnectHandler runs asynchronously and may not have executed
	// yet; IsConnected must be true as soon as Connect returns.
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return c, nil
}

// handleConnect is called when the connection is established.
func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	// A reconnect after an unexpected drop leaves the LWT as the retained
	// status, so the online status has to be restored.
	c.announceMu.Lock()
	announced, presentationURL := c.announced, c.presentationURL
	c.announceMu.Unlock()
	if announced {
		c.client.Publish(Topics{}.DeviceStatus(c.device.UDN), byte(c.cfg.QoS), true, buildOnlinePayload(c.device, presentationURL))
	}

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleDisconnect is called when the connection is lost.
func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost", "error", err)
	}

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// Announce publishes the retained online status of the device with the
// URL its web interface is reachable at.
func (c *Client) Announce(presentationURL string) error {
	c.announceMu.Lock()
	c.announced = true
	c.presentationURL = presentationURL
	c.announceMu.Unlock()
	return c.PublishRetained(Topics{}.DeviceStatus(c.device.UDN), buildOnlinePayload(c.device, presentationURL))
}

// Withdraw publishes the retained graceful offline status of the device.
func (c *Client) Withdraw() error {
	c.announceMu.Lock()
	c.announced = false
	c.announceMu.Unlock()
	return c.PublishRetained(Topics{}.DeviceStatus(c.device.UDN), buildOfflinePayload(c.device, reasonGraceful))
}

// Close gracefully disconnects from the MQTT broker.
//
// A device still announced is withdrawn first, so subscribers see a
// graceful offline status rather than the LWT.
//
// Returns:
//   - error: If disconnect fails (connection already closed is not an error)
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}

	c.announceMu.Lock()
	announced := c.announced
	c.announceMu.Unlock()
	if announced && c.IsConnected() {
		if err := c.Withdraw(); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("withdrawing device status", "error", err)
			}
		}
	}

	c.client.Disconnect(defaultDisconnectQuiesce)

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	return nil
}

// HealthCheck verifies the MQTT connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	if c.client == nil {
		return false
	}
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// SetOnConnect sets a callback to be invoked when connection is established.
// This is called on initial connect and on every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback to be invoked when connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for connection and publish failures.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}
