// Package server implements the device controller of the media server.
//
// The Controller owns the lifecycle of the UPnP root device and is the
// single callback the stack delivers network events to.
//
// Lifecycle:
//
//	Uninitialized ──Init──▶ Bound ──Register──▶ Registered ──Advertise──▶ Active
//	                                                                         │
//	Unregistered ◀──Finish── ShuttingDown ◀──────── Unregister ◀─────────────┘
//
// Start walks the states left to right and stops at the first failure.
// Shutdown releases whatever was acquired, in reverse order, whichever
// state Start reached.
//
// # Dispatch
//
// HandleEvent classifies each event as an action or a subscription,
// checks that it is addressed to this device and routes it by service id
// to ContentDirectory, ConnectionManager or MediaReceiverRegistrar.
// Dispatch is serialised by one mutex: two events are never handled at
// the same time. A nil event is rejected without taking the mutex.
//
// Results flow back into the event: on success the handler's output
// arguments, on a protocol failure the UPnP error code and message.
// Failures without a UPnP code, and handler panics, are logged and do not
// reach the stack as error codes.
//
// # Usage
//
//	ctrl, err := server.New(server.Deps{
//	    Config:   cfg.Server,
//	    Stack:    stack,
//	    Services: server.Services{ContentDirectory: cd, ConnectionManager: cm, MediaReceiverRegistrar: mrr},
//	    Storage:  db,
//	    Logger:   log,
//	})
//	if err := ctrl.Start(ctx); err != nil { ... }
//	defer ctrl.Shutdown()
package server
