// Package dispatcher is the Core's command surface: one method per
// shell-invoked command (spec.md §6), each routing to the engine that owns
// the named connection id and returning Ok(message) or Err(message).
// Grounded on the teacher's cmd/server and cmd/client main()s, which wire a
// logger and a transport/store together before exposing a small number of
// entry points; here those entry points are promoted to a long-lived
// struct instead of being inlined in main, since a single process manages
// many concurrent endpoints rather than one.
package dispatcher

import (
	"context"
	"path/filepath"

	"github.com/vienkmt/commscore/common"
	"github.com/vienkmt/commscore/eventbus"
	"github.com/vienkmt/commscore/logging"
	"github.com/vienkmt/commscore/mqttengine"
	"github.com/vienkmt/commscore/registry"
	"github.com/vienkmt/commscore/serialengine"
	"github.com/vienkmt/commscore/tcpclient"
	"github.com/vienkmt/commscore/tcpserver"
)

// Result is what every command returns to the shell: Ok(message) or
// Err(message), per spec.md §6.
type Result struct {
	Message string
	Err     error
}

// Ok builds a successful Result.
func Ok(message string) Result { return Result{Message: message} }

// Err builds a failed Result.
func Err(err error) Result { return Result{Err: err} }

// Core holds every live endpoint registry and the shared event bus they
// publish to. One Core per process. Ref: spec.md §5 Registries: "keyed
// maps from connection id to handle... protected by a mutex per
// registry" — each engine kind gets its own registry.Registry instance
// rather than one lock shared across all six kinds, so an open_port
// command never waits behind an mqtt_connect command.
type Core struct {
	Bus    *eventbus.Bus
	Logger common.LoggerInterface

	serialPorts   *registry.Registry[*serialengine.Port]
	tcpClients    *registry.Registry[*tcpclient.Client]
	tcpServers    *registry.Registry[*tcpserver.Server]
	mqttSessions  *registry.Registry[*mqttengine.Session]
	modbusMasters *registry.Registry[*modbusMasterHandle]
	modbusSlaves  *registry.Registry[*modbusSlaveHandle]
}

// New builds a Core with empty registries, publishing to bus.
func New(bus *eventbus.Bus) *Core {
	return &Core{
		Bus:           bus,
		Logger:        logging.NewNoopLogger(),
		serialPorts:   registry.New[*serialengine.Port](),
		tcpClients:    registry.New[*tcpclient.Client](),
		tcpServers:    registry.New[*tcpserver.Server](),
		mqttSessions:  registry.New[*mqttengine.Session](),
		modbusMasters: registry.New[*modbusMasterHandle](),
		modbusSlaves:  registry.New[*modbusSlaveHandle](),
	}
}

// Close tears down every live endpoint across every registry, ignoring
// individual close errors (the process is shutting down regardless).
func (c *Core) Close(ctx context.Context) {
	for _, p := range c.serialPorts.List() {
		p.Close()
	}
	for _, cl := range c.tcpClients.List() {
		cl.Close(ctx)
	}
	for _, s := range c.tcpServers.List() {
		s.Close(ctx)
	}
	for _, s := range c.mqttSessions.List() {
		s.Close(ctx)
	}
	for _, m := range c.modbusMasters.List() {
		m.close(ctx)
	}
	for _, s := range c.modbusSlaves.List() {
		s.close(ctx)
	}
}

func normalizePortName(name string) common.ConnectionID {
	return common.ConnectionID(filepath.Clean(name))
}
