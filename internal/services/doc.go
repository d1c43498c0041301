// Package services implements the UPnP services of the media server:
// ContentDirectory, ConnectionManager and X_MS_MediaReceiverRegistrar.
//
// Each service handles actions through ProcessAction and subscriptions
// through ProcessSubscription. A handler reports a UPnP failure by
// returning a *upnp.Error; any other error is treated by the caller as
// an internal failure.
//
//	cds := services.NewContentDirectory(store)
//	cds.SetVirtualURL("http://192.168.1.10:49152/content")
//
// Descriptions returns the service list, with the embedded SCPD documents,
// for the device description. ContentHandler serves item resources
// referenced from Browse results.
package services
