package services

import (
	"strings"

	"github.com/nerrad567/gray-logic-media/internal/upnp"
)

// connectionID is the only connection a server without PrepareForConnection
// reports.
const connectionID = "0"

// ConnectionManager reports the protocols the server can source.
type ConnectionManager struct {
	sourceProtocolInfo string
}

// NewConnectionManager creates the service. protocolInfo lists the
// supported protocolInfo strings.
func NewConnectionManager(protocolInfo []string) *ConnectionManager {
	return &ConnectionManager{sourceProtocolInfo: strings.Join(protocolInfo, ",")}
}

// ProcessAction handles one ConnectionManager action.
func (cm *ConnectionManager) ProcessAction(req *upnp.ActionRequest) error {
	switch req.ActionName() {
	case "GetProtocolInfo":
		req.AddResult("Source", cm.sourceProtocolInfo)
		req.AddResult("Sink", "")
	case "GetCurrentConnectionIDs":
		req.AddResult("ConnectionIDs", connectionID)
	case "GetCurrentConnectionInfo":
		id, err := requireArg(req, "ConnectionID")
		if err != nil {
			return err
		}
		if id != connectionID {
			return upnp.HandlerError(upnp.CodeInvalidConnectionReference, "invalid connection reference "+id)
		}
		req.AddResult("RcsID", i4(-1))
		req.AddResult("AVTransportID", i4(-1))
		req.AddResult("ProtocolInfo", "")
		req.AddResult("PeerConnectionManager", "")
		req.AddResult("PeerConnectionID", i4(-1))
		req.AddResult("Direction", "Output")
		req.AddResult("Status", "OK")
	default:
		return unknownAction(req)
	}
	return nil
}

// ProcessSubscription accepts a subscription with the current protocol info.
func (cm *ConnectionManager) ProcessSubscription(req *upnp.SubscriptionRequest) error {
	req.Accept([]upnp.Arg{
		{Name: "SourceProtocolInfo", Value: cm.sourceProtocolInfo},
		{Name: "SinkProtocolInfo", Value: ""},
		{Name: "CurrentConnectionIDs", Value: connectionID},
	})
	return nil
}
