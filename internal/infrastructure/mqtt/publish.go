package mqtt

import (
	"encoding/json"
	"fmt"
	"time"
)

// Maximum payload size for MQTT messages (1MB).
// This prevents resource exhaustion and aligns with typical broker limits.
const maxPayloadSize = 1 << 20 // 1MB

// Publish sends a message to the specified MQTT topic.
//
// Parameters:
//   - topic: The topic to publish to (e.g., "graymedia/catalog/updated")
//   - payload: The message payload (typically JSON, max 1MB)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message for new subscribers
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishRetained publishes a retained message with the configured default QoS.
//
// Use for state updates where new subscribers should receive the current state.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}

// CatalogUpdate is the payload of the catalog update topic.
type CatalogUpdate struct {
	UDN            string `json:"udn"`
	SystemUpdateID uint32 `json:"system_update_id"`
	ContainerIDs   []int  `json:"container_ids"`
	Timestamp      string `json:"timestamp"`
}

// PublishCatalogUpdate announces a committed catalog change. It is not
// retained: subscribers that missed it read the current state over UPnP.
func (c *Client) PublishCatalogUpdate(systemUpdateID uint32, containerIDs []int) error {
	if containerIDs == nil {
		containerIDs = []int{}
	}
	payload, err := json.Marshal(CatalogUpdate{
		UDN:            c.device.UDN,
		SystemUpdateID: systemUpdateID,
		ContainerIDs:   containerIDs,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("%w: encoding catalog update: %w", ErrPublishFailed, err)
	}
	return c.Publish(Topics{}.CatalogUpdated(), payload, byte(c.cfg.QoS), false)
}
