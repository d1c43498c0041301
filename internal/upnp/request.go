package upnp

// ActionRequest is the view of an ActionEvent handed to service handlers.
// Handlers read arguments and add results; Update copies the results back
// into the event.
type ActionRequest struct {
	udn        string
	serviceID  string
	actionName string
	args       []Arg
	results    []Arg
}

// NewActionRequest builds a request view from a raw event.
func NewActionRequest(ev *ActionEvent) *ActionRequest {
	args := make([]Arg, len(ev.Args))
	copy(args, ev.Args)
	return &ActionRequest{
		udn:        ev.DevUDN,
		serviceID:  ev.ServiceID,
		actionName: ev.ActionName,
		args:       args,
	}
}

func (r *ActionRequest) UDN() string        { return r.udn }
func (r *ActionRequest) ServiceID() string  { return r.serviceID }
func (r *ActionRequest) ActionName() string { return r.actionName }

// Arg returns the value of the named input argument.
func (r *ActionRequest) Arg(name string) (string, bool) {
	for _, a := range r.args {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// AddResult appends an output argument. UPnP requires output arguments
// in the order the service description declares them.
func (r *ActionRequest) AddResult(name, value string) {
	r.results = append(r.results, Arg{Name: name, Value: value})
}

// Results returns the output arguments added so far.
func (r *ActionRequest) Results() []Arg {
	return r.results
}

// Update writes the results into ev and marks it answered.
func (r *ActionRequest) Update(ev *ActionEvent) {
	ev.Result = append([]Arg(nil), r.results...)
	ev.Responded = true
	ev.ErrCode = 0
	ev.ErrStr = ""
}

// SubscriptionRequest is the view of a SubscriptionEvent handed to
// service handlers.
type SubscriptionRequest struct {
	ev *SubscriptionEvent
}

// NewSubscriptionRequest builds a request view from a raw event.
func NewSubscriptionRequest(ev *SubscriptionEvent) *SubscriptionRequest {
	return &SubscriptionRequest{ev: ev}
}

func (r *SubscriptionRequest) UDN() string       { return r.ev.UDN }
func (r *SubscriptionRequest) ServiceID() string { return r.ev.ServiceID }
func (r *SubscriptionRequest) SID() string       { return r.ev.SID }

// Accept accepts the subscription with the given initial property set.
func (r *SubscriptionRequest) Accept(vars []Arg) {
	r.ev.Vars = append([]Arg(nil), vars...)
	r.ev.Accepted = true
}
