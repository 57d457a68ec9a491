// Package tcpserver implements the TCP Server Engine: bind, accept loop
// with a client cap, per-client dual read/write with optional echo mode,
// and broadcast/unicast send. Ref: spec.md §4.4.
//
// Grounded on the teacher's server.TCPServer accept/handleConnection
// shape (deadline-based accept loop, per-client goroutine, clients map
// guarded by its own mutex) generalized from Modbus MBAP framing to raw
// byte-stream passthrough, since this module's TCP Server Engine is not
// Modbus-specific.
package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vienkmt/commscore/common"
	"github.com/vienkmt/commscore/eventbus"
	"github.com/vienkmt/commscore/logging"
)

const (
	readBufferSize    = 4096
	outboundQueueSize = 100
	acceptPollTimeout = time.Second
)

var ErrClientNotFound = errors.New("tcp server: client not found")

// Server is one bound TCP listener with its accepted-client registry.
type Server struct {
	id     common.ConnectionID
	config common.TCPServerConfig
	logger common.LoggerInterface
	bus    *eventbus.Bus
	echo   atomic.Bool

	listener net.Listener
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	nextClientID atomic.Uint64

	clientsMu sync.RWMutex
	clients   map[string]*clientHandle
}

// clientHandle is one accepted connection's state.
type clientHandle struct {
	id          string
	remoteAddr  string
	connectedAt time.Time
	conn        net.Conn
	outbound    chan []byte
	closeOnce   sync.Once
}

func (c *clientHandle) close() {
	c.closeOnce.Do(func() {
		close(c.outbound)
		c.conn.Close()
	})
}

// Option configures a Server.
type Option func(*Server)

// WithLogger attaches a logger.
func WithLogger(logger common.LoggerInterface) Option {
	return func(s *Server) { s.logger = logger }
}

// WithEcho enables per-server echo mode: every received chunk is answered
// with "Echo: " + the received bytes. Ref: spec.md §4.4.
func WithEcho(enabled bool) Option {
	return func(s *Server) { s.echo.Store(enabled) }
}

// SetEcho toggles echo mode on a running server. Ref: spec.md §6
// tcp_server_set_echo.
func (s *Server) SetEcho(enabled bool) {
	s.echo.Store(enabled)
}

// Start binds the listener and spawns the accept loop in the background.
// On bind failure it distinguishes address-in-use from a generic failure,
// emits an error status, and returns the error synchronously.
func Start(ctx context.Context, cfg common.TCPServerConfig, bus *eventbus.Bus, options ...Option) (*Server, error) {
	s := &Server{
		id:      cfg.ServerID,
		config:  cfg,
		logger:  logging.NewNoopLogger(),
		bus:     bus,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		clients: make(map[string]*clientHandle),
	}
	for _, opt := range options {
		opt(s)
	}

	addr := net.JoinHostPort(cfg.BindAddress, strconv.Itoa(cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		message := err.Error()
		if strings.Contains(message, "address already in use") {
			message = fmt.Sprintf("address in use: %s", addr)
		}
		s.logger.Error(ctx, "tcp server %s failed to bind %s: %v", s.id, addr, err)
		s.emitStatus(common.TCPServerStatusError, message)
		close(s.done)
		return nil, err
	}
	s.listener = listener
	s.logger.Info(ctx, "tcp server %s listening on %s", s.id, addr)
	s.emitStatus(common.TCPServerStatusStarted, addr)

	go s.acceptLoop(ctx)
	return s, nil
}

// ID returns the connection id this server was started under.
func (s *Server) ID() common.ConnectionID { return s.id }

// Running reports whether the accept loop goroutine is still alive.
func (s *Server) Running() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Close stops the server: clears the running flag, closes the listener,
// lets per-client tasks drain, and emits stopped. Ref: spec.md §4.4.
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info(ctx, "stopping tcp server %s", s.id)
	s.stopOnce.Do(func() {
		close(s.stop)
		s.listener.Close()
	})
	<-s.done

	s.clientsMu.Lock()
	for _, c := range s.clients {
		c.close()
	}
	s.clients = make(map[string]*clientHandle)
	s.clientsMu.Unlock()

	s.emitStatus(common.TCPServerStatusStopped, "")
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		if tcpListener, ok := s.listener.(*net.TCPListener); ok {
			tcpListener.SetDeadline(time.Now().Add(acceptPollTimeout))
		}

		conn, err := s.listener.Accept()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-s.stop:
				return
			default:
				continue
			}
		}

		if s.clientCount() >= s.config.MaxClients {
			s.logger.Warn(ctx, "tcp server %s at max clients (%d), dropping connection from %s", s.id, s.config.MaxClients, conn.RemoteAddr())
			conn.Close()
			continue
		}

		id := fmt.Sprintf("client-%d", s.nextClientID.Add(1))
		handle := &clientHandle{
			id:          id,
			remoteAddr:  conn.RemoteAddr().String(),
			connectedAt: time.Now(),
			conn:        conn,
			outbound:    make(chan []byte, outboundQueueSize),
		}
		s.clientsMu.Lock()
		s.clients[id] = handle
		s.clientsMu.Unlock()

		s.logger.Info(ctx, "tcp server %s accepted %s from %s", s.id, id, handle.remoteAddr)
		s.emitClientEvent(handle, common.ClientEventConnected)
		go s.serveClient(ctx, handle)
	}
}

func (s *Server) clientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// serveClient runs the dual read/write halves for one client and removes
// it from the registry on exit.
func (s *Server) serveClient(ctx context.Context, h *clientHandle) {
	defer func() {
		h.close()
		s.clientsMu.Lock()
		delete(s.clients, h.id)
		s.clientsMu.Unlock()
		s.logger.Info(ctx, "tcp server %s: %s disconnected", s.id, h.id)
		s.emitClientEvent(h, common.ClientEventDisconnected)
	}()

	var g errgroup.Group
	g.Go(func() error {
		for data := range h.outbound {
			s.logger.Trace(ctx, "tcp server %s writing %d bytes to %s", s.id, len(data), h.id)
			if hexLogger, ok := s.logger.(common.LoggerInterfaceHexdump); ok {
				hexLogger.Hexdump(ctx, data)
			}
			if _, err := h.conn.Write(data); err != nil {
				s.logger.Warn(ctx, "tcp server %s write to %s failed: %v", s.id, h.id, err)
				return err
			}
		}
		return nil
	})

	buf := make([]byte, readBufferSize)
	for {
		n, err := h.conn.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			s.logger.Trace(ctx, "tcp server %s read %d bytes from %s", s.id, n, h.id)
			if hexLogger, ok := s.logger.(common.LoggerInterfaceHexdump); ok {
				hexLogger.Hexdump(ctx, data)
			}
			s.emitData(h.id, data)
			if s.echo.Load() {
				s.trySend(h, append([]byte("Echo: "), data...))
			}
		}
		if err != nil || n == 0 {
			break
		}
	}
	h.close()
	g.Wait()
}

// trySend enqueues data for one client, dropping it if the queue is full
// rather than blocking the reader goroutine.
func (s *Server) trySend(h *clientHandle, data []byte) {
	defer func() { recover() }() // outbound may already be closed by a concurrent forced disconnect
	select {
	case h.outbound <- data:
	default:
	}
}

// Send implements tcp_server_send: with clientID empty, fans out to every
// live client best-effort; with clientID set, targets that client or
// returns ErrClientNotFound. Ref: spec.md §4.4.
func (s *Server) Send(clientID string, data []byte) error {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	if clientID == "" {
		for _, h := range s.clients {
			s.trySend(h, data)
		}
		return nil
	}
	h, ok := s.clients[clientID]
	if !ok {
		return ErrClientNotFound
	}
	s.trySend(h, data)
	return nil
}

// DisconnectClient forcibly closes one client's outbound queue and
// connection, which drives its serveClient goroutine to a clean exit.
func (s *Server) DisconnectClient(clientID string) error {
	s.clientsMu.RLock()
	h, ok := s.clients[clientID]
	s.clientsMu.RUnlock()
	if !ok {
		return ErrClientNotFound
	}
	s.logger.Info(context.Background(), "tcp server %s forcibly disconnecting %s", s.id, clientID)
	h.close()
	return nil
}

// ClientInfo mirrors common.TCPClientInfo for one currently-connected
// client.
type ClientInfo = common.TCPClientInfo

// Clients returns a snapshot of currently-connected clients.
func (s *Server) Clients() []ClientInfo {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	out := make([]ClientInfo, 0, len(s.clients))
	for _, h := range s.clients {
		out = append(out, ClientInfo{
			ClientID:    h.id,
			RemoteAddr:  h.remoteAddr,
			ConnectedAt: h.connectedAt,
		})
	}
	return out
}

func (s *Server) emitStatus(status, message string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(common.Event{
		Topic: common.TopicTCPServerStatus,
		Payload: common.TCPServerStatusPayload{
			ServerID:  s.id,
			Status:    status,
			Message:   message,
			Timestamp: common.NowMillis(),
		},
		Timestamp: common.NowMillis(),
	})
}

func (s *Server) emitClientEvent(h *clientHandle, eventType string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(common.Event{
		Topic: common.TopicTCPServerClientEvent,
		Payload: common.TCPServerClientEventPayload{
			ServerID:   s.id,
			ClientID:   h.id,
			RemoteAddr: h.remoteAddr,
			EventType:  eventType,
			Timestamp:  common.NowMillis(),
		},
		Timestamp: common.NowMillis(),
	})
}

func (s *Server) emitData(clientID string, data []byte) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(common.Event{
		Topic: common.TopicTCPData,
		Payload: common.TCPDataPayload{
			ConnectionID: s.id,
			ClientID:     clientID,
			Data:         data,
			Timestamp:    common.NowMillis(),
		},
		Timestamp: common.NowMillis(),
	})
}

var _ common.Endpoint = (*Server)(nil)
