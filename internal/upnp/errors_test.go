package upnp

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestWireCodeTotal(t *testing.T) {
	for k := ErrorKind(0); k < numErrorKinds; k++ {
		if k.WireCode() == 0 {
			t.Errorf("kind %d has no wire code", k)
		}
		if strings.HasPrefix(k.String(), "ErrorKind(") {
			t.Errorf("kind %d has no name", k)
		}
	}

	if got := ErrorKind(99).WireCode(); got != CodeActionFailed {
		t.Errorf("out-of-range kind WireCode() = %d, want %d", got, CodeActionFailed)
	}
}

func TestErrorWireCode(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want int
	}{
		{"bad request default", BadRequest("request not for this device"), CodeInvalidAction},
		{"handler explicit", HandlerError(CodeNoSuchObject, "no such object"), CodeNoSuchObject},
		{"handler default", &Error{Kind: KindHandler}, CodeActionFailed},
		{"internal", InternalError(errors.New("boom")), CodeActionFailed},
		{"registration", RegistrationError("binding", errors.New("address in use")), CodeActionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.WireCode(); got != tt.want {
				t.Errorf("WireCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRegistrationErrorKeepsCode(t *testing.T) {
	inner := HandlerError(CodeInvalidArgs, "bad args")
	err := RegistrationError("registering device", fmt.Errorf("stack: %w", inner))

	if err.Kind != KindRegistration {
		t.Errorf("Kind = %v, want %v", err.Kind, KindRegistration)
	}
	if got := err.WireCode(); got != CodeInvalidArgs {
		t.Errorf("WireCode() = %d, want %d", got, CodeInvalidArgs)
	}
	if !errors.Is(err, inner) {
		t.Error("registration error should unwrap to the stack error")
	}
}

func TestAsError(t *testing.T) {
	wrapped := fmt.Errorf("routing: %w", BadRequest("unknown service"))

	e, ok := AsError(wrapped)
	if !ok {
		t.Fatal("AsError() ok = false, want true")
	}
	if e.Message != "unknown service" {
		t.Errorf("Message = %q", e.Message)
	}

	if _, ok := AsError(errors.New("plain")); ok {
		t.Error("AsError() on plain error should be false")
	}
}

func TestErrorString(t *testing.T) {
	err := InternalError(errors.New("disk full"))
	got := err.Error()
	for _, want := range []string{"internal error", "501", "disk full"} {
		if !strings.Contains(got, want) {
			t.Errorf("Error() = %q, missing %q", got, want)
		}
	}
}

func TestDescription(t *testing.T) {
	if got := ErrorDescription(CodeNoSuchObject); got != "No such object" {
		t.Errorf("ErrorDescription(701) = %q", got)
	}
	if got := ErrorDescription(999); got != "Error" {
		t.Errorf("ErrorDescription(999) = %q", got)
	}
}
