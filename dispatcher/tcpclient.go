package dispatcher

import (
	"context"
	"fmt"

	"github.com/vienkmt/commscore/common"
	"github.com/vienkmt/commscore/tcpclient"
)

// TCPClientConnect spawns a reconnecting TCP client. Ref: spec.md §6
// tcp_client_connect.
func (c *Core) TCPClientConnect(ctx context.Context, cfg common.TCPClientConfig) Result {
	if c.tcpClients.Has(string(cfg.ConnectionID)) {
		return Err(common.ErrAlreadyOpen)
	}

	client := tcpclient.Dial(ctx, cfg, c.Bus, tcpclient.WithLogger(c.Logger))

	if !c.tcpClients.Put(string(cfg.ConnectionID), client) {
		client.Close(ctx)
		return Err(common.ErrAlreadyOpen)
	}
	return Ok(fmt.Sprintf("connecting %s", cfg.ConnectionID))
}

// TCPClientDisconnect stops a client's reconnection state machine. Ref:
// spec.md §6 tcp_client_disconnect.
func (c *Core) TCPClientDisconnect(ctx context.Context, id common.ConnectionID) Result {
	client, ok := c.tcpClients.Remove(string(id))
	if !ok {
		return Err(common.ErrNotFound)
	}
	if err := client.Close(ctx); err != nil {
		return Err(err)
	}
	return Ok(fmt.Sprintf("disconnected %s", id))
}

// TCPClientSend enqueues data on a client's outbound queue. Ref: spec.md §6
// tcp_client_send.
func (c *Core) TCPClientSend(id common.ConnectionID, payload string, isHex bool) Result {
	client, ok := c.tcpClients.Get(string(id))
	if !ok {
		return Err(common.ErrNotFound)
	}

	data := decodePayload(payload, isHex)
	if err := client.Send(data); err != nil {
		return Err(err)
	}
	return Ok(fmt.Sprintf("enqueued %d bytes for %s", len(data), id))
}

// IsTCPClientConnected reports whether id's reconnection state machine is
// currently in the connected state.
func (c *Core) IsTCPClientConnected(id common.ConnectionID) bool {
	client, ok := c.tcpClients.Get(string(id))
	if !ok {
		return false
	}
	return client.StateNow() == tcpclient.StateConnected
}
