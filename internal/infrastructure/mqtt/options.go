package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-media/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Device status values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Offline reasons.
const (
	reasonUnexpected = "unexpected_disconnect"
	reasonGraceful   = "graceful_shutdown"
)

// Device identifies the media server in status messages.
type Device struct {
	UDN          string
	FriendlyName string
}

// statusPayload is the JSON body of the retained device status topic.
type statusPayload struct {
	Status          string `json:"status"`
	UDN             string `json:"udn"`
	FriendlyName    string `json:"friendly_name,omitempty"`
	PresentationURL string `json:"presentation_url,omitempty"`
	Reason          string `json:"reason,omitempty"`
	Timestamp       string `json:"timestamp"`
}

// buildClientOptions creates paho MQTT options from the media server config.
//
// This configures:
//   - Broker URL (tcp:// or ssl:// based on TLS setting)
//   - Client ID for identification
//   - Authentication credentials (if provided)
//   - Auto-reconnect with exponential backoff
//   - TLS configuration (if enabled)
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// The server only publishes, so there is no session state worth keeping.
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	return opts
}

// configureLWT sets up Last Will and Testament for offline detection.
//
// The broker publishes the will when the server disappears without
// closing the connection, so home automation sees the media server go
// offline even after a crash.
//
// Topic: graymedia/device/{udn}/status
// QoS: 1 (guaranteed delivery)
// Retained: true (new subscribers see last status)
func configureLWT(opts *pahomqtt.ClientOptions, dev Device) {
	opts.SetBinaryWill(Topics{}.DeviceStatus(dev.UDN), buildOfflinePayload(dev, reasonUnexpected), 1, true)
}

// buildOnlinePayload creates the JSON payload announcing the device.
func buildOnlinePayload(dev Device, presentationURL string) []byte {
	return marshalStatus(statusPayload{
		Status:          StatusOnline,
		UDN:             dev.UDN,
		FriendlyName:    dev.FriendlyName,
		PresentationURL: presentationURL,
	})
}

// buildOfflinePayload creates the JSON payload withdrawing the device.
func buildOfflinePayload(dev Device, reason string) []byte {
	return marshalStatus(statusPayload{
		Status: StatusOffline,
		UDN:    dev.UDN,
		Reason: reason,
	})
}

func marshalStatus(p statusPayload) []byte {
	p.Timestamp = time.Now().UTC().Format(time.RFC3339)
	// A struct of strings always marshals.
	data, _ := json.Marshal(p) //nolint:errcheck // cannot fail
	return data
}
