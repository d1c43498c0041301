// Package mqtt publishes the media server's presence and catalog changes
// to an MQTT broker for home automation.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - A retained device status topic with Last Will and Testament
//   - Catalog update notifications
//
// # Topics
//
//	graymedia/device/{udn}/status   retained  online / offline
//	graymedia/catalog/updated                 system update id and touched containers
//
// The status topic carries the LWT, so an unexpected disconnect leaves
// {"status":"offline","reason":"unexpected_disconnect"} for subscribers.
// Presence publishes "online" once the UPnP device is advertised and a
// graceful "offline" before it is withdrawn.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.Device{UDN: udn, FriendlyName: name})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	presence := mqtt.NewPresence(client, ctrl.PresentationURL) // a controller subsystem
//	err = client.PublishCatalogUpdate(change.SystemUpdateID, change.ContainerIDs)
package mqtt
