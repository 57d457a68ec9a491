package dispatcher

import (
	"context"
	"fmt"

	"github.com/vienkmt/commscore/common"
	"github.com/vienkmt/commscore/tcpserver"
)

// TCPServerStart binds a listener and starts accepting clients. Ref:
// spec.md §6 tcp_server_start.
func (c *Core) TCPServerStart(ctx context.Context, cfg common.TCPServerConfig, echo bool) Result {
	if c.tcpServers.Has(string(cfg.ServerID)) {
		return Err(common.ErrAlreadyOpen)
	}

	server, err := tcpserver.Start(ctx, cfg, c.Bus, tcpserver.WithLogger(c.Logger), tcpserver.WithEcho(echo))
	if err != nil {
		return Err(err)
	}

	if !c.tcpServers.Put(string(cfg.ServerID), server) {
		server.Close(ctx)
		return Err(common.ErrAlreadyOpen)
	}
	return Ok(fmt.Sprintf("listening %s", cfg.ServerID))
}

// TCPServerStop closes a listener and drops every connected client. Ref:
// spec.md §6 tcp_server_stop.
func (c *Core) TCPServerStop(ctx context.Context, id common.ConnectionID) Result {
	server, ok := c.tcpServers.Remove(string(id))
	if !ok {
		return Err(common.ErrNotFound)
	}
	if err := server.Close(ctx); err != nil {
		return Err(err)
	}
	return Ok(fmt.Sprintf("stopped %s", id))
}

// TCPServerSetEcho toggles echo mode on a running server. Ref: spec.md §6
// tcp_server_set_echo.
func (c *Core) TCPServerSetEcho(id common.ConnectionID, enabled bool) Result {
	server, ok := c.tcpServers.Get(string(id))
	if !ok {
		return Err(common.ErrNotFound)
	}
	server.SetEcho(enabled)
	return Ok(fmt.Sprintf("echo=%v on %s", enabled, id))
}

// TCPServerSend writes to one client, or to every connected client when
// clientID is empty. Ref: spec.md §6 tcp_server_send.
func (c *Core) TCPServerSend(id common.ConnectionID, clientID string, payload string, isHex bool) Result {
	server, ok := c.tcpServers.Get(string(id))
	if !ok {
		return Err(common.ErrNotFound)
	}

	data := decodePayload(payload, isHex)
	if err := server.Send(clientID, data); err != nil {
		return Err(err)
	}
	return Ok(fmt.Sprintf("sent %d bytes", len(data)))
}

// TCPServerDisconnectClient forcibly drops one connected client. Ref:
// spec.md §6 tcp_server_disconnect_client.
func (c *Core) TCPServerDisconnectClient(id common.ConnectionID, clientID string) Result {
	server, ok := c.tcpServers.Get(string(id))
	if !ok {
		return Err(common.ErrNotFound)
	}
	if err := server.DisconnectClient(clientID); err != nil {
		return Err(err)
	}
	return Ok(fmt.Sprintf("disconnected %s from %s", clientID, id))
}

// TCPServerClients returns a snapshot of currently-connected clients. Ref:
// spec.md §6 tcp_server_get_clients.
func (c *Core) TCPServerClients(id common.ConnectionID) ([]common.TCPClientInfo, error) {
	server, ok := c.tcpServers.Get(string(id))
	if !ok {
		return nil, common.ErrNotFound
	}
	return server.Clients(), nil
}

// IsTCPServerRunning reports whether id's accept loop is still alive.
func (c *Core) IsTCPServerRunning(id common.ConnectionID) bool {
	server, ok := c.tcpServers.Get(string(id))
	if !ok {
		return false
	}
	return server.Running()
}
