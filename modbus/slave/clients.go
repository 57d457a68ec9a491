package slave

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/vienkmt/commscore/common"
)

// ClientHandle is the live per-connection tracking state for one TCP master
// talking to this slave. Must not be copied; use Snapshot for a readable copy.
// Grounded on gomodbus's server.clientConn.
type ClientHandle struct {
	ClientID    common.ConnectionID
	RemoteAddr  string
	ConnectedAt time.Time
	requests    atomic.Uint64
}

// ClientSnapshot is an immutable, copyable view of a ClientHandle.
type ClientSnapshot struct {
	ClientID    common.ConnectionID
	RemoteAddr  string
	ConnectedAt time.Time
	Requests    uint64
}

// ClientSet tracks every TCP master currently connected to a slave. It
// emits no events itself; TCPListener publishes connect/disconnect events.
type ClientSet struct {
	mu      sync.RWMutex
	clients map[common.ConnectionID]*ClientHandle
}

// NewClientSet returns an empty ClientSet.
func NewClientSet() *ClientSet {
	return &ClientSet{clients: make(map[common.ConnectionID]*ClientHandle)}
}

// Add registers a newly connected client.
func (c *ClientSet) Add(id common.ConnectionID, remoteAddr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients[id] = &ClientHandle{ClientID: id, RemoteAddr: remoteAddr, ConnectedAt: time.Now()}
}

// Remove drops a disconnected client.
func (c *ClientSet) Remove(id common.ConnectionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.clients, id)
}

// RecordRequest increments the request counter for id, if still connected.
func (c *ClientSet) RecordRequest(id common.ConnectionID) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if client, ok := c.clients[id]; ok {
		client.requests.Add(1)
	}
}

// Snapshot returns a stable, copyable view of every connected client.
func (c *ClientSet) Snapshot() []ClientSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ClientSnapshot, 0, len(c.clients))
	for _, client := range c.clients {
		out = append(out, ClientSnapshot{
			ClientID:    client.ClientID,
			RemoteAddr:  client.RemoteAddr,
			ConnectedAt: client.ConnectedAt,
			Requests:    client.requests.Load(),
		})
	}
	return out
}

// Len reports the number of currently connected clients.
func (c *ClientSet) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.clients)
}
