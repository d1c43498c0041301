package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementDispatch      = "upnp_dispatch"
	measurementCatalogChange = "catalog_change"
)

// DispatchRecord describes one UPnP event handled by the device.
type DispatchRecord struct {
	// Event is the event type, e.g. "action_request".
	Event string
	// Service is the short service name, e.g. "ContentDirectory".
	Service string
	// Action is empty for subscriptions.
	Action   string
	Code     int
	Duration time.Duration
}

// WriteDispatch records a handled UPnP event.
//
// The write is non-blocking; data is batched and sent asynchronously.
func (c *Client) WriteDispatch(rec DispatchRecord) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(dispatchPoint(rec, time.Now()))
}

// WriteCatalogChange records a committed catalog change.
//
// Parameters:
//   - systemUpdateID: The catalog-wide update counter after the change
//   - containers: Number of containers whose children changed
func (c *Client) WriteCatalogChange(systemUpdateID uint32, containers int) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(catalogChangePoint(systemUpdateID, containers, time.Now()))
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Example:
//
//	client.WritePoint("content_served",
//	    map[string]string{"mime_type": "video/mp4"},
//	    map[string]interface{}{"bytes": 1048576})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func dispatchPoint(rec DispatchRecord, ts time.Time) *write.Point {
	tags := map[string]string{
		"event":   rec.Event,
		"service": rec.Service,
	}
	// Empty tag values are not valid line protocol.
	if rec.Action != "" {
		tags["action"] = rec.Action
	}
	if rec.Service == "" {
		delete(tags, "service")
	}

	return write.NewPoint(
		measurementDispatch,
		tags,
		map[string]interface{}{
			"code":        rec.Code,
			"duration_ms": float64(rec.Duration) / float64(time.Millisecond),
		},
		ts,
	)
}

func catalogChangePoint(systemUpdateID uint32, containers int, ts time.Time) *write.Point {
	return write.NewPoint(
		measurementCatalogChange,
		nil,
		map[string]interface{}{
			"system_update_id": systemUpdateID,
			"containers":       containers,
		},
		ts,
	)
}
