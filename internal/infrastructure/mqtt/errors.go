package mqtt

import "errors"

var (
	// ErrNoDevice is returned by Connect when the device has no UDN to
	// build its status topic from.
	ErrNoDevice = errors.New("mqtt: device udn is empty")

	// ErrConnectionFailed wraps the first connect failure or timeout.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrNotConnected is returned while the broker link is down.
	ErrNotConnected = errors.New("mqtt: not connected")

	// ErrPublishFailed wraps oversized payloads, timeouts and broker errors.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrInvalidQoS rejects a QoS above 2.
	ErrInvalidQoS = errors.New("mqtt: qos must be 0, 1 or 2")

	// ErrInvalidTopic rejects an empty topic.
	ErrInvalidTopic = errors.New("mqtt: empty topic")
)
