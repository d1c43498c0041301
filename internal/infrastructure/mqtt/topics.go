package mqtt

import "fmt"

// TopicPrefix is the base of every topic the media server publishes.
const TopicPrefix = "graymedia"

// Topics provides builders for the media server's MQTT topics.
//
//	topics := mqtt.Topics{}
//	statusTopic := topics.DeviceStatus("uuid:5c2b6a1e-...")
//	// Returns: "graymedia/device/uuid:5c2b6a1e-.../status"
type Topics struct{}

// DeviceStatus returns the retained presence topic of a device.
//
// Example: graymedia/device/uuid:0f5d.../status
func (Topics) DeviceStatus(udn string) string {
	return fmt.Sprintf("%s/device/%s/status", TopicPrefix, udn)
}

// CatalogUpdated returns the topic catalog changes are published on.
//
// Example: graymedia/catalog/updated
func (Topics) CatalogUpdated() string {
	return fmt.Sprintf("%s/catalog/updated", TopicPrefix)
}

// AllDeviceStatus returns a pattern matching every device status topic.
//
// Pattern: graymedia/device/+/status
func (Topics) AllDeviceStatus() string {
	return fmt.Sprintf("%s/device/+/status", TopicPrefix)
}
