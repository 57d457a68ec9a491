package common

import "context"

// ConnectionID is a shell-chosen opaque identifier for a live endpoint
// (serial port, TCP client, TCP server, MQTT session, Modbus instance).
// It is unique among live endpoints of the same kind; re-opening a closed
// id is legal, opening a live id fails.
type ConnectionID string

// Endpoint is implemented by the TCP client, TCP server, MQTT session and
// Modbus master/slave handles so the registry and the dispatcher can manage
// them uniformly. serialengine.Port does not implement it: its Close takes
// no context and it has no Running method.
type Endpoint interface {
	ID() ConnectionID
	// Close tears the endpoint down: stops workers, releases the OS handle,
	// and is safe to call more than once.
	Close(ctx context.Context) error
	// Running reports whether the endpoint's worker(s) are still active.
	Running() bool
}
