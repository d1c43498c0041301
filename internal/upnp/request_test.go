package upnp

import "testing"

func TestActionRequest(t *testing.T) {
	ev := &ActionEvent{
		DevUDN:     "uuid:dev",
		ServiceID:  "urn:upnp-org:serviceId:ContentDirectory",
		ActionName: "Browse",
		Args:       []Arg{{Name: "ObjectID", Value: "0"}},
		ErrCode:    CodeActionFailed,
		ErrStr:     "stale",
	}

	req := NewActionRequest(ev)
	ev.Args[0].Value = "changed"

	if req.UDN() != "uuid:dev" || req.ActionName() != "Browse" {
		t.Errorf("request = %s/%s", req.UDN(), req.ActionName())
	}
	if v, ok := req.Arg("ObjectID"); !ok || v != "0" {
		t.Errorf("Arg(ObjectID) = %q, %v; want \"0\", true", v, ok)
	}
	if _, ok := req.Arg("Missing"); ok {
		t.Error("Arg(Missing) should not be found")
	}

	req.AddResult("Result", "<DIDL-Lite/>")
	req.AddResult("NumberReturned", "0")
	req.Update(ev)

	if !ev.Responded {
		t.Error("Update should mark the event responded")
	}
	if ev.ErrCode != 0 || ev.ErrStr != "" {
		t.Errorf("Update should clear the error, got %d %q", ev.ErrCode, ev.ErrStr)
	}
	if len(ev.Result) != 2 || ev.Result[1].Name != "NumberReturned" {
		t.Errorf("Result = %v", ev.Result)
	}
}

func TestSubscriptionRequest(t *testing.T) {
	ev := &SubscriptionEvent{UDN: "uuid:dev", ServiceID: "svc", SID: "uuid:sid"}
	req := NewSubscriptionRequest(ev)

	if req.SID() != "uuid:sid" || req.ServiceID() != "svc" || req.UDN() != "uuid:dev" {
		t.Errorf("request = %s %s %s", req.UDN(), req.ServiceID(), req.SID())
	}

	vars := []Arg{{Name: "SystemUpdateID", Value: "3"}}
	req.Accept(vars)
	vars[0].Value = "4"

	if !ev.Accepted {
		t.Error("Accept should mark the event accepted")
	}
	if ev.Vars[0].Value != "3" {
		t.Errorf("Vars should be copied, got %v", ev.Vars)
	}
}

func TestEventTypeString(t *testing.T) {
	tests := []struct {
		typ  EventType
		want string
	}{
		{EventActionRequest, "action_request"},
		{EventSubscriptionRequest, "subscription_request"},
		{EventGetVarRequest, "get_var_request"},
		{EventType(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("EventType(%d).String() = %q, want %q", tt.typ, got, tt.want)
		}
	}
}
