// Package upnp implements the device side of the UPnP device architecture
// used by the media server: description, SOAP control, GENA eventing and
// SSDP advertisement.
//
// A Stack delivers network requests to a device Callback as typed events:
//
//	stack := upnp.NewHTTPStack(upnp.Options{ServerName: name})
//	if err := stack.Init("eth0", "", 49152); err != nil {
//	    return err
//	}
//	h, err := stack.RegisterRootDevice(desc, controller.HandleEvent)
//	err = stack.SendAdvertisement(h, 30*time.Minute)
//
// Action requests arrive as *ActionEvent. The callback either fills the
// result and sets Responded, or sets ErrCode; HTTPStack renders the SOAP
// response or UPnP fault accordingly. ActionRequest and SubscriptionRequest
// are the views service handlers work with.
//
// Errors with a UPnP code are *Error values. ErrorKind maps every kind to
// its wire code through a fixed table.
//
// HTTP routing uses chi, SSDP uses go-ssdp, and subscription ids are UUIDs.
package upnp
