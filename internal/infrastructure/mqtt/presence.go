package mqtt

import "context"

// Presence ties the retained device status to the lifetime of the UPnP
// device: the device is announced when it starts and withdrawn when it
// stops.
type Presence struct {
	client *Client
	// presentationURL is read at Start, once the device address is known.
	presentationURL func() string
}

// NewPresence returns a presence subsystem publishing through client.
// presentationURL may be nil.
func NewPresence(client *Client, presentationURL func() string) *Presence {
	return &Presence{client: client, presentationURL: presentationURL}
}

// Name identifies the subsystem in logs.
func (p *Presence) Name() string { return "mqtt-presence" }

// Start announces the device.
func (p *Presence) Start(_ context.Context) error {
	var url string
	if p.presentationURL != nil {
		url = p.presentationURL()
	}
	return p.client.Announce(url)
}

// Stop withdraws the device.
func (p *Presence) Stop() error {
	return p.client.Withdraw()
}
