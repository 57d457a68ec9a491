// Package tcpclient implements the TCP Client Engine: one outbound TCP
// connection per endpoint, with automatic reconnection and a bounded
// outbound queue. Ref: spec.md §4.3.
//
// Grounded on the teacher's transport.TCPTransport: split read/write
// goroutines over a shared net.Conn, a done channel to unwind both on
// disconnect, and a mutex guarding the connection handle. The reconnect
// state machine and per-write retry/timeout behavior are new: the teacher's
// Modbus TCP transport never reconnects or retries, since this module's
// TCP Client Engine is a general byte-stream endpoint, not Modbus-specific.
package tcpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vienkmt/commscore/common"
	"github.com/vienkmt/commscore/eventbus"
	"github.com/vienkmt/commscore/logging"
)

// State is a position in the reconnection state machine. Ref: spec.md §4.3.
type State int32

const (
	StateConnect State = iota
	StateConnected
	StateReconnecting
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnect:
		return "connect"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Constants from spec.md §4.3.
const (
	MaxReconnectAttempts = 3
	ReconnectDelay       = 1 * time.Second
	MaxRetries           = 3
	RetryDelay           = 500 * time.Millisecond
	WriteTimeout         = 5 * time.Second
	FlushTimeout         = 2 * time.Second
	readBufferSize       = 4096
	outboundQueueSize    = 100
)

var ErrQueueFull = errors.New("tcp client outbound queue full")

// Client is one managed outbound TCP connection.
type Client struct {
	id     common.ConnectionID
	config common.TCPClientConfig
	logger common.LoggerInterface
	bus    *eventbus.Bus

	connMu sync.Mutex
	conn   net.Conn

	outbound chan []byte
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	state          State
	reconnectDelay time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithLogger attaches a logger.
func WithLogger(logger common.LoggerInterface) Option {
	return func(c *Client) { c.logger = logger }
}

// WithReconnectDelay overrides ReconnectDelay; tests use this to avoid
// waiting a full second per retry.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) { c.reconnectDelay = d }
}

// Dial builds the client and starts the reconnection state machine in the
// background; it returns immediately without waiting for the first
// connection attempt to resolve, per spec.md §8 ("commands never wait for
// peers").
func Dial(ctx context.Context, cfg common.TCPClientConfig, bus *eventbus.Bus, options ...Option) *Client {
	c := &Client{
		id:             cfg.ConnectionID,
		config:         cfg,
		logger:         logging.NewNoopLogger(),
		bus:            bus,
		outbound:       make(chan []byte, outboundQueueSize),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
		state:          StateConnect,
		reconnectDelay: ReconnectDelay,
	}
	for _, opt := range options {
		opt(c)
	}
	go c.run(ctx)
	return c
}

// ID returns the connection id this client was opened under.
func (c *Client) ID() common.ConnectionID { return c.id }

// Running reports whether the state machine goroutine is still alive.
func (c *Client) Running() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Send enqueues data for the write half. Returns ErrQueueFull if the
// outbound queue is saturated rather than blocking the caller.
func (c *Client) Send(data []byte) error {
	select {
	case c.outbound <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close triggers a user-initiated disconnect and waits for the state
// machine goroutine to exit. If a connection is currently active, it is
// closed immediately to unblock the read half rather than waiting for the
// next iteration of the reconnect loop to notice the stop signal.
func (c *Client) Close(ctx context.Context) error {
	c.logger.Info(ctx, "closing tcp client %s", c.id)
	c.stopOnce.Do(func() { close(c.stop) })
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.connMu.Unlock()
	<-c.done
	return nil
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	attempts := 0
	for {
		select {
		case <-c.stop:
			c.setState(StateDisconnected)
			c.emitStatus(common.TCPClientStatusDisconnected, "")
			return
		default:
		}

		if attempts == 0 {
			c.setState(StateConnect)
			c.logger.Info(ctx, "connecting tcp client %s to %s:%d", c.id, c.config.Host, c.config.Port)
			c.emitStatus(common.TCPClientStatusConnecting, "")
		} else {
			c.setState(StateReconnecting)
			c.logger.Info(ctx, "reconnecting tcp client %s, attempt %d", c.id, attempts)
			c.emitStatus(common.TCPClientStatusReconnecting, fmt.Sprintf("attempt %d", attempts))
		}

		conn, err := c.dial(ctx)
		if err != nil {
			c.logger.Warn(ctx, "tcp client %s dial failed: %v", c.id, err)
			attempts++
			if attempts > MaxReconnectAttempts {
				c.logger.Error(ctx, "tcp client %s exhausted %d reconnect attempts, giving up", c.id, MaxReconnectAttempts)
				c.setState(StateDisconnected)
				c.emitStatus(common.TCPClientStatusDisconnected, err.Error())
				return
			}
			select {
			case <-time.After(c.reconnectDelay):
			case <-c.stop:
				c.setState(StateDisconnected)
				c.emitStatus(common.TCPClientStatusDisconnected, "")
				return
			}
			continue
		}

		attempts = 0
		c.connMu.Lock()
		c.conn = conn
		c.connMu.Unlock()
		c.setState(StateConnected)
		c.logger.Info(ctx, "tcp client %s connected to %s:%d", c.id, c.config.Host, c.config.Port)
		c.emitStatus(common.TCPClientStatusConnected, "")

		c.serve(ctx, conn)

		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		c.logger.Debug(ctx, "tcp client %s connection ended", c.id)

		select {
		case <-c.stop:
			c.setState(StateDisconnected)
			c.emitStatus(common.TCPClientStatusDisconnected, "")
			return
		default:
		}
	}
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)
	dialer := net.Dialer{Timeout: 10 * time.Second}
	return dialer.DialContext(ctx, "tcp", addr)
}

// serve runs the read and write halves concurrently until either sets
// connection-lost, then waits for both to exit.
func (c *Client) serve(ctx context.Context, conn net.Conn) {
	connLost := make(chan struct{})
	var once sync.Once
	setLost := func() { once.Do(func() { close(connLost) }) }

	var g errgroup.Group
	g.Go(func() error {
		c.readLoop(ctx, conn, setLost)
		return nil
	})
	g.Go(func() error {
		c.writeLoop(ctx, conn, connLost, setLost)
		return nil
	})
	g.Wait()
	conn.Close()
}

// readLoop reads into a 4096-byte buffer and emits tcp-data for every
// non-empty chunk. A zero-byte read is a clean peer close; any error is a
// dirty close. Either sets connection-lost. Ref: spec.md §4.3.
func (c *Client) readLoop(ctx context.Context, conn net.Conn, setLost func()) {
	c.logger.Debug(ctx, "tcp client %s read loop starting", c.id)
	defer c.logger.Debug(ctx, "tcp client %s read loop exiting", c.id)

	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			c.logger.Trace(ctx, "tcp client %s read %d bytes", c.id, n)
			if hexLogger, ok := c.logger.(common.LoggerInterfaceHexdump); ok {
				hexLogger.Hexdump(ctx, buf[:n])
			}
			c.emitData(buf[:n])
		}
		if err != nil {
			c.logger.Info(ctx, "tcp client %s read ended: %v", c.id, err)
			setLost()
			return
		}
		if n == 0 {
			c.logger.Info(ctx, "tcp client %s peer closed connection", c.id)
			setLost()
			return
		}
	}
}

// writeLoop consumes from the outbound queue, attempting write_all with a
// 5s timeout followed by flush with a 2s timeout, retrying up to
// MaxRetries with RetryDelay between attempts. Ref: spec.md §4.3.
func (c *Client) writeLoop(ctx context.Context, conn net.Conn, connLost <-chan struct{}, setLost func()) {
	for {
		select {
		case <-connLost:
			return
		case data, ok := <-c.outbound:
			if !ok {
				return
			}
			if err := c.writeWithRetry(ctx, conn, data); err != nil {
				c.logger.Error(ctx, "tcp client %s write failed after retries: %v", c.id, err)
				c.emitStatus(common.TCPClientStatusWriteFailed, err.Error())
				setLost()
				return
			}
		}
	}
}

func (c *Client) writeWithRetry(ctx context.Context, conn net.Conn, data []byte) error {
	c.logger.Debug(ctx, "tcp client %s writing %d bytes", c.id, len(data))
	if hexLogger, ok := c.logger.(common.LoggerInterfaceHexdump); ok {
		hexLogger.Hexdump(ctx, data)
	}

	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn(ctx, "tcp client %s retrying write, attempt %d: %v", c.id, attempt, lastErr)
			c.emitStatus(common.TCPClientStatusRetrying, fmt.Sprintf("attempt %d", attempt))
			time.Sleep(RetryDelay)
		}
		if err := writeAllTimeout(conn, data, WriteTimeout); err != nil {
			lastErr = err
			continue
		}
		if err := flushTimeout(conn, FlushTimeout); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

// writeAllTimeout writes every byte of data under a single deadline,
// looping on short writes since net.Conn.Write may return less than
// len(data) without error.
func writeAllTimeout(conn net.Conn, data []byte, timeout time.Duration) error {
	if deadline, ok := conn.(interface{ SetWriteDeadline(time.Time) error }); ok {
		deadline.SetWriteDeadline(time.Now().Add(timeout))
	}
	for written := 0; written < len(data); {
		n, err := conn.Write(data[written:])
		written += n
		if err != nil {
			return err
		}
	}
	return nil
}

// flushTimeout is a no-op for plain net.Conn (TCP has no user-space flush
// buffer here); it exists so a buffered writer can be substituted later
// without changing writeWithRetry's shape.
func flushTimeout(conn net.Conn, timeout time.Duration) error {
	return nil
}

func (c *Client) setState(s State) {
	c.connMu.Lock()
	c.state = s
	c.connMu.Unlock()
}

// StateNow returns the current reconnection state.
func (c *Client) StateNow() State {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.state
}

func (c *Client) emitData(data []byte) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(common.Event{
		Topic: common.TopicTCPData,
		Payload: common.TCPDataPayload{
			ConnectionID: c.id,
			Data:         data,
			Timestamp:    common.NowMillis(),
		},
		Timestamp: common.NowMillis(),
	})
}

func (c *Client) emitStatus(status, message string) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(common.Event{
		Topic: common.TopicTCPClientStatus,
		Payload: common.TCPClientStatusPayload{
			ConnectionID: c.id,
			Status:       status,
			Message:      message,
			Timestamp:    common.NowMillis(),
		},
		Timestamp: common.NowMillis(),
	})
}

var _ common.Endpoint = (*Client)(nil)
