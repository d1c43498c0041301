package upnp

// EventType classifies an event delivered to a device callback.
type EventType int

// Event types raised by a Stack.
const (
	// EventActionRequest carries an *ActionEvent.
	EventActionRequest EventType = iota + 1

	// EventSubscriptionRequest carries a *SubscriptionEvent.
	EventSubscriptionRequest

	// EventGetVarRequest carries a *StateVarEvent. QueryStateVariable is
	// deprecated in UPnP 1.1 and devices answer it with an error.
	EventGetVarRequest
)

func (t EventType) String() string {
	switch t {
	case EventActionRequest:
		return "action_request"
	case EventSubscriptionRequest:
		return "subscription_request"
	case EventGetVarRequest:
		return "get_var_request"
	default:
		return "unknown"
	}
}

// Arg is a named SOAP argument or state variable value.
type Arg struct {
	Name  string
	Value string
}

// Callback receives events for a registered root device and returns 0 on
// success or a UPnP error code.
type Callback func(eventType EventType, event any) int

// ActionEvent is a SOAP control request as received from the network.
// The device callback fills in either Result (and sets Responded) or
// ErrCode and ErrStr.
type ActionEvent struct {
	DevUDN     string
	ServiceID  string
	ActionName string
	Args       []Arg

	Result    []Arg
	Responded bool
	ErrCode   int
	ErrStr    string
}

// SubscriptionEvent is a GENA SUBSCRIBE request for a service.
// Accepting it fills Vars with the initial property set.
type SubscriptionEvent struct {
	UDN       string
	ServiceID string
	SID       string

	Accepted bool
	Vars     []Arg
}

// StateVarEvent is a QueryStateVariable request.
type StateVarEvent struct {
	DevUDN    string
	ServiceID string
	VarName   string

	Value   string
	ErrCode int
	ErrStr  string
}
