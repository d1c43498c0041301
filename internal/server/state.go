package server

// State is the lifecycle position of a Controller.
type State int32

// Controller states, in the order a controller moves through them.
const (
	StateUninitialized State = iota
	StateBound
	StateRegistered
	StateActive
	StateShuttingDown
	StateUnregistered
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateBound:
		return "bound"
	case StateRegistered:
		return "registered"
	case StateActive:
		return "active"
	case StateShuttingDown:
		return "shutting_down"
	case StateUnregistered:
		return "unregistered"
	default:
		return "unknown"
	}
}
