package services

import "github.com/nerrad567/gray-logic-media/internal/upnp"

// MediaReceiverRegistrar answers the registration checks media extenders
// perform before browsing. Every device is authorised and validated.
type MediaReceiverRegistrar struct{}

// NewMediaReceiverRegistrar creates the service.
func NewMediaReceiverRegistrar() *MediaReceiverRegistrar {
	return &MediaReceiverRegistrar{}
}

// ProcessAction handles one registrar action.
func (*MediaReceiverRegistrar) ProcessAction(req *upnp.ActionRequest) error {
	switch req.ActionName() {
	case "IsAuthorized", "IsValidated":
		if _, err := requireArg(req, "DeviceID"); err != nil {
			return err
		}
		req.AddResult("Result", "1")
	case "RegisterDevice":
		return upnp.HandlerError(upnp.CodeInvalidAction, "device registration is not supported")
	default:
		return unknownAction(req)
	}
	return nil
}

// ProcessSubscription accepts a subscription with all update ids at zero.
func (*MediaReceiverRegistrar) ProcessSubscription(req *upnp.SubscriptionRequest) error {
	zero := ui4(0)
	req.Accept([]upnp.Arg{
		{Name: "AuthorizationGrantedUpdateID", Value: zero},
		{Name: "AuthorizationDeniedUpdateID", Value: zero},
		{Name: "ValidationSucceededUpdateID", Value: zero},
		{Name: "ValidationRevokedUpdateID", Value: zero},
	})
	return nil
}

