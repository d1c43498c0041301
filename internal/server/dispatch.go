package server

import (
	"time"

	"github.com/nerrad567/gray-logic-media/internal/upnp"
)

// HandleEvent is the device callback registered with the stack. It returns
// 0 on success or the UPnP error code of a protocol failure.
//
// A nil event is rejected before the dispatch lock is taken. Everything
// else is classified, routed and written back under the lock. Errors
// without a UPnP code and handler panics are logged and contained: the
// call reports success and no result is written.
func (c *Controller) HandleEvent(eventType upnp.EventType, event any) int {
	if isNilEvent(event) {
		c.logger.Warn("rejecting nil event", "type", eventType.String())
		return upnp.KindBadRequest.WireCode()
	}

	start := time.Now()
	d := c.dispatch(eventType, event)
	d.Duration = time.Since(start)

	if c.observer != nil {
		c.observer.ObserveDispatch(d)
	}
	return d.Code
}

func (c *Controller) dispatch(eventType upnp.EventType, event any) (d Dispatch) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d.EventType = eventType
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in event handler",
				"type", eventType.String(),
				"service_id", d.ServiceID,
				"action", d.Action,
				"panic", r,
			)
			d.Code = 0
		}
	}()

	switch eventType {
	case upnp.EventActionRequest:
		ev, ok := event.(*upnp.ActionEvent)
		if !ok {
			return c.rejectPayload(d, event)
		}
		d.ServiceID, d.Action = ev.ServiceID, ev.ActionName
		d.Code = c.handleAction(ev)

	case upnp.EventSubscriptionRequest:
		ev, ok := event.(*upnp.SubscriptionEvent)
		if !ok {
			return c.rejectPayload(d, event)
		}
		d.ServiceID = ev.ServiceID
		d.Code = c.handleSubscription(ev)

	default:
		c.logger.Warn("unsupported event type", "type", eventType.String())
		d.Code = upnp.KindBadRequest.WireCode()
	}
	return d
}

func (c *Controller) rejectPayload(d Dispatch, event any) Dispatch {
	c.logger.Warn("event payload does not match its type",
		"type", d.EventType.String(),
		"payload", typeName(event),
	)
	d.Code = upnp.KindBadRequest.WireCode()
	return d
}

// handleAction routes an action and writes the outcome into ev.
func (c *Controller) handleAction(ev *upnp.ActionEvent) int {
	req := upnp.NewActionRequest(ev)

	err := c.routeAction(req)
	if err == nil {
		req.Update(ev)
		c.logger.Debug("action handled", "service_id", ev.ServiceID, "action", ev.ActionName)
		return 0
	}

	if e, ok := upnp.AsError(err); ok {
		code := e.WireCode()
		ev.ErrCode = code
		ev.ErrStr = e.Message
		c.logger.Warn("action failed",
			"service_id", ev.ServiceID,
			"action", ev.ActionName,
			"code", code,
			"error", err,
		)
		return code
	}

	c.logger.Error("action failed with internal error",
		"service_id", ev.ServiceID,
		"action", ev.ActionName,
		"error", err,
	)
	return 0
}

// handleSubscription routes a subscription. Failures are only logged;
// protocol failures also return their code.
func (c *Controller) handleSubscription(ev *upnp.SubscriptionEvent) int {
	err := c.routeSubscription(upnp.NewSubscriptionRequest(ev))
	if err == nil {
		c.logger.Debug("subscription accepted", "service_id", ev.ServiceID, "sid", ev.SID)
		return 0
	}

	if e, ok := upnp.AsError(err); ok {
		c.logger.Warn("subscription rejected",
			"service_id", ev.ServiceID,
			"sid", ev.SID,
			"code", e.WireCode(),
			"error", err,
		)
		return e.WireCode()
	}

	c.logger.Error("subscription failed with internal error",
		"service_id", ev.ServiceID,
		"sid", ev.SID,
		"error", err,
	)
	return 0
}

func (c *Controller) routeAction(req *upnp.ActionRequest) error {
	svc, err := c.route(req.UDN(), req.ServiceID())
	if err != nil {
		return err
	}
	return svc.ProcessAction(req)
}

func (c *Controller) routeSubscription(req *upnp.SubscriptionRequest) error {
	svc, err := c.route(req.UDN(), req.ServiceID())
	if err != nil {
		return err
	}
	return svc.ProcessSubscription(req)
}

// route selects the service for a request addressed to udn.
func (c *Controller) route(udn, serviceID string) (Service, error) {
	if udn != c.cfg.UDN {
		return nil, upnp.BadRequest("request not for this device")
	}
	svc, ok := c.routes[serviceID]
	if !ok {
		return nil, upnp.BadRequest("unknown service id " + serviceID)
	}
	return svc, nil
}

func isNilEvent(event any) bool {
	switch ev := event.(type) {
	case nil:
		return true
	case *upnp.ActionEvent:
		return ev == nil
	case *upnp.SubscriptionEvent:
		return ev == nil
	case *upnp.StateVarEvent:
		return ev == nil
	}
	return false
}

func typeName(v any) string {
	switch v.(type) {
	case *upnp.ActionEvent:
		return "action"
	case *upnp.SubscriptionEvent:
		return "subscription"
	case *upnp.StateVarEvent:
		return "state_var"
	default:
		return "other"
	}
}
