package services

import (
	"context"
	"embed"
	"fmt"

	"github.com/huin/goupnp/soap"

	"github.com/nerrad567/gray-logic-media/internal/catalog"
	"github.com/nerrad567/gray-logic-media/internal/upnp"
)

// Service identifiers and types of the media server device.
const (
	ContentDirectoryID   = "urn:upnp-org:serviceId:ContentDirectory"
	ContentDirectoryType = "urn:schemas-upnp-org:service:ContentDirectory:1"

	ConnectionManagerID   = "urn:upnp-org:serviceId:ConnectionManager"
	ConnectionManagerType = "urn:schemas-upnp-org:service:ConnectionManager:1"

	MediaReceiverRegistrarID   = "urn:microsoft.com:serviceId:X_MS_MediaReceiverRegistrar"
	MediaReceiverRegistrarType = "urn:microsoft.com:service:X_MS_MediaReceiverRegistrar:1"
)

//go:embed scpd/*.xml
var scpdFS embed.FS

// Catalog is the read side of the catalog store used by the services.
type Catalog interface {
	Object(ctx context.Context, id int) (catalog.Object, error)
	Children(ctx context.Context, parentID, offset, limit int) ([]catalog.Object, int, error)
	SystemUpdateID(ctx context.Context) (uint32, error)
}

// Logger defines the logging interface used by the services.
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

// Descriptions returns the service list of the media server device with
// the embedded service descriptions attached.
func Descriptions() ([]upnp.Service, error) {
	entries := []struct {
		id, typ, file string
	}{
		{ContentDirectoryID, ContentDirectoryType, "scpd/content_directory.xml"},
		{ConnectionManagerID, ConnectionManagerType, "scpd/connection_manager.xml"},
		{MediaReceiverRegistrarID, MediaReceiverRegistrarType, "scpd/media_receiver_registrar.xml"},
	}

	services := make([]upnp.Service, 0, len(entries))
	for _, e := range entries {
		raw, err := scpdFS.ReadFile(e.file)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.file, err)
		}
		services = append(services, upnp.Service{
			ServiceType: e.typ,
			ServiceID:   e.id,
			SCPD:        raw,
		})
	}
	return services, nil
}

// requireArg returns the named argument or a 402 error.
func requireArg(req *upnp.ActionRequest, name string) (string, error) {
	v, ok := req.Arg(name)
	if !ok {
		return "", upnp.HandlerError(upnp.CodeInvalidArgs, "missing argument "+name)
	}
	return v, nil
}

func ui4(v uint32) string {
	s, _ := soap.MarshalUi4(v)
	return s
}

func i4(v int32) string {
	s, _ := soap.MarshalI4(v)
	return s
}

func unknownAction(req *upnp.ActionRequest) error {
	return upnp.HandlerError(upnp.CodeInvalidAction, "unknown action "+req.ActionName())
}
