package upnp

import (
	"net/http"
	"time"
)

// DeviceHandle identifies a registered root device within a Stack.
type DeviceHandle int

// Stack is the discovery and control transport a device controller runs on.
//
// The lifecycle is Init, then configuration (SetWebRoot, AddCustomHeader,
// AddVirtualDir), then RegisterRootDevice and SendAdvertisement. Shutdown
// is UnregisterRootDevice followed by Finish.
type Stack interface {
	// Init binds the transport to port (0 selects any free port) on ip
	// when set, otherwise on iface (empty selects the first usable
	// interface).
	Init(iface, ip string, port int) error

	// ServerIP and ServerPort report the bound address after Init.
	ServerIP() string
	ServerPort() int

	// SetWebRoot serves dir at the HTTP root.
	SetWebRoot(dir string) error

	// AddCustomHeader adds a header to every HTTP response.
	AddCustomHeader(name, value string) error

	// AddVirtualDir serves h below /name/.
	AddVirtualDir(name string, h http.Handler) error

	// RegisterRootDevice publishes desc and routes its events to cb.
	RegisterRootDevice(desc *Description, cb Callback) (DeviceHandle, error)

	// SendAdvertisement announces the device with the given max-age,
	// truncated to whole seconds on the wire.
	SendAdvertisement(h DeviceHandle, maxAge time.Duration) error

	// Notify sends a property change to every subscriber of the service.
	Notify(h DeviceHandle, serviceID string, vars []Arg) error

	// UnregisterRootDevice withdraws the device and sends byebye notices.
	UnregisterRootDevice(h DeviceHandle) error

	// Finish releases every transport resource.
	Finish() error
}

// Logger defines the logging interface used by the stack.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
