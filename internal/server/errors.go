package server

import "errors"

// Controller errors.
var (
	// ErrInvalidConfig is returned by Start for inconsistent server settings.
	ErrInvalidConfig = errors.New("server: invalid configuration")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("server: controller already started")

	// ErrNotActive is returned when an operation needs an advertised device.
	ErrNotActive = errors.New("server: controller not active")
)
