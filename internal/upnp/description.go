package upnp

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

// Device description namespaces and types.
const (
	DeviceNamespace  = "urn:schemas-upnp-org:device-1-0"
	ServiceNamespace = "urn:schemas-upnp-org:service-1-0"
	ControlNamespace = "urn:schemas-upnp-org:control-1-0"
	EventNamespace   = "urn:schemas-upnp-org:event-1-0"

	MediaServerDeviceType = "urn:schemas-upnp-org:device:MediaServer:1"
)

// Description is a UPnP root device description document.
type Description struct {
	XMLName     xml.Name    `xml:"urn:schemas-upnp-org:device-1-0 root"`
	SpecVersion SpecVersion `xml:"specVersion"`
	Device      Device      `xml:"device"`
}

// SpecVersion is the UPnP architecture version.
type SpecVersion struct {
	Major int `xml:"major"`
	Minor int `xml:"minor"`
}

// Device describes the root device.
type Device struct {
	DeviceType       string    `xml:"deviceType"`
	FriendlyName     string    `xml:"friendlyName"`
	Manufacturer     string    `xml:"manufacturer"`
	ManufacturerURL  string    `xml:"manufacturerURL,omitempty"`
	ModelDescription string    `xml:"modelDescription,omitempty"`
	ModelName        string    `xml:"modelName"`
	ModelNumber      string    `xml:"modelNumber,omitempty"`
	ModelURL         string    `xml:"modelURL,omitempty"`
	SerialNumber     string    `xml:"serialNumber,omitempty"`
	UDN              string    `xml:"UDN"`
	PresentationURL  string    `xml:"presentationURL,omitempty"`
	Services         []Service `xml:"serviceList>service"`
}

// Service describes one service of the device. SCPD holds the service
// description document served at SCPDURL; the stack assigns the URLs when
// the device is registered.
type Service struct {
	ServiceType string `xml:"serviceType"`
	ServiceID   string `xml:"serviceId"`
	SCPDURL     string `xml:"SCPDURL"`
	ControlURL  string `xml:"controlURL"`
	EventSubURL string `xml:"eventSubURL"`

	SCPD []byte `xml:"-"`
}

// NewDescription returns a description for device with UPnP 1.0 version info.
func NewDescription(device Device) *Description {
	return &Description{
		SpecVersion: SpecVersion{Major: 1, Minor: 0},
		Device:      device,
	}
}

// Marshal renders the document with an XML declaration.
func (d *Description) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("encoding device description: %w", err)
	}
	return buf.Bytes(), nil
}

// Service returns the service with the given id.
func (d *Description) Service(serviceID string) (*Service, bool) {
	for i := range d.Device.Services {
		if d.Device.Services[i].ServiceID == serviceID {
			return &d.Device.Services[i], true
		}
	}
	return nil, false
}

// clone copies the description so the stack can assign URLs without
// touching the caller's value.
func (d *Description) clone() *Description {
	cpy := *d
	cpy.Device.Services = append([]Service(nil), d.Device.Services...)
	return &cpy
}

// ShortName derives a path segment from a service id, e.g.
// "urn:upnp-org:serviceId:ContentDirectory" becomes "ContentDirectory".
func ShortName(serviceID string) string {
	if i := strings.LastIndex(serviceID, ":"); i >= 0 {
		return serviceID[i+1:]
	}
	return serviceID
}
