package upnp

import (
	"errors"
	"fmt"
)

// UPnP control error codes.
const (
	CodeInvalidAction                = 401
	CodeInvalidArgs                  = 402
	CodeInvalidVar                   = 404
	CodeActionFailed                 = 501
	CodeArgumentValueInvalid         = 600
	CodeArgumentValueOutOfRange      = 601
	CodeOptionalActionNotImplemented = 602
	CodeNoSuchObject                 = 701
	CodeInvalidConnectionReference   = 706
	CodeNoSuchContainer              = 710
	CodeCannotProcess                = 720
)

// ErrorKind classifies a protocol error.
type ErrorKind int

// Error kinds.
const (
	// KindBadRequest covers requests that do not belong to this device,
	// name an unknown service, or are malformed.
	KindBadRequest ErrorKind = iota

	// KindRegistration covers stack failures while binding, registering
	// or advertising the device.
	KindRegistration

	// KindHandler covers failures raised by a service handler.
	KindHandler

	// KindInternal covers unexpected failures.
	KindInternal

	numErrorKinds
)

// wireCodes maps every kind to the code sent when the error carries no
// explicit code. Every kind below numErrorKinds must have a non-zero entry.
var wireCodes = [numErrorKinds]int{
	KindBadRequest:   CodeInvalidAction,
	KindRegistration: CodeActionFailed,
	KindHandler:      CodeActionFailed,
	KindInternal:     CodeActionFailed,
}

var kindNames = [numErrorKinds]string{
	KindBadRequest:   "bad request",
	KindRegistration: "registration failure",
	KindHandler:      "handler failure",
	KindInternal:     "internal error",
}

func (k ErrorKind) String() string {
	if k < 0 || k >= numErrorKinds {
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
	return kindNames[k]
}

// WireCode returns the default code for the kind.
func (k ErrorKind) WireCode() int {
	if k < 0 || k >= numErrorKinds {
		return wireCodes[KindInternal]
	}
	return wireCodes[k]
}

// Error is a protocol-level error: it carries the code reported to the
// control point.
type Error struct {
	Kind    ErrorKind
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("upnp: %s (%d): %s", e.Kind, e.WireCode(), e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WireCode returns Code when set and the kind's default otherwise.
func (e *Error) WireCode() int {
	if e.Code != 0 {
		return e.Code
	}
	return e.Kind.WireCode()
}

// BadRequest returns a KindBadRequest error.
func BadRequest(message string) *Error {
	return &Error{Kind: KindBadRequest, Message: message}
}

// HandlerError returns a KindHandler error with an explicit UPnP code.
func HandlerError(code int, message string) *Error {
	return &Error{Kind: KindHandler, Code: code, Message: message}
}

// RegistrationError wraps a stack failure during startup. A code carried
// by err is preserved.
func RegistrationError(op string, err error) *Error {
	e := &Error{Kind: KindRegistration, Message: op, Err: err}
	var inner *Error
	if errors.As(err, &inner) {
		e.Code = inner.WireCode()
	}
	return e
}

// InternalError wraps an unexpected failure.
func InternalError(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// AsError reports whether err is or wraps an *Error.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// ErrorDescription returns the standard text for a UPnP error code.
func ErrorDescription(code int) string {
	switch code {
	case CodeInvalidAction:
		return "Invalid Action"
	case CodeInvalidArgs:
		return "Invalid Args"
	case CodeInvalidVar:
		return "Invalid Var"
	case CodeActionFailed:
		return "Action Failed"
	case CodeArgumentValueInvalid:
		return "Argument Value Invalid"
	case CodeArgumentValueOutOfRange:
		return "Argument Value Out of Range"
	case CodeOptionalActionNotImplemented:
		return "Optional Action Not Implemented"
	case CodeNoSuchObject:
		return "No such object"
	case CodeInvalidConnectionReference:
		return "Invalid connection reference"
	case CodeNoSuchContainer:
		return "No such container"
	case CodeCannotProcess:
		return "Cannot process the request"
	default:
		return "Error"
	}
}

// Stack errors.
var (
	// ErrNotInitialised is returned by stack calls made before Init.
	ErrNotInitialised = errors.New("upnp: stack not initialised")

	// ErrAlreadyInitialised is returned by a second Init.
	ErrAlreadyInitialised = errors.New("upnp: stack already initialised")

	// ErrUnknownDevice is returned for a handle that is not registered.
	ErrUnknownDevice = errors.New("upnp: unknown device handle")

	// ErrInterfaceNotFound is returned when no usable interface or address exists.
	ErrInterfaceNotFound = errors.New("upnp: interface not found")

	// ErrInvalidVirtualDir is returned for an empty or nested virtual directory name.
	ErrInvalidVirtualDir = errors.New("upnp: invalid virtual directory")
)
