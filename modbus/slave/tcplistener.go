// TCP transport for a Modbus slave: accept loop + per-client MBAP framing,
// grounded on the teacher's server.TCPServer accept/handleConnection shape
// (deadline-driven accept loop, io.ReadFull header-then-body reads, a
// clients map guarded by its own mutex), generalized to run a
// spec.md-shaped Handler instead of the teacher's common.HandlerFunc map.
package slave

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vienkmt/commscore/common"
	"github.com/vienkmt/commscore/eventbus"
	"github.com/vienkmt/commscore/logging"
	"github.com/vienkmt/commscore/modbus/mbap"
	"github.com/vienkmt/commscore/modbus/proto"
)

const acceptPollTimeout = time.Second

// TCPListener is a Modbus TCP slave bound to one address.
type TCPListener struct {
	id      common.ConnectionID
	handler *Handler
	bus     *eventbus.Bus
	logger  common.LoggerInterface

	listener net.Listener
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	nextClientID atomic.Uint64
	clients      *ClientSet
}

// TCPOption configures a TCPListener.
type TCPOption func(*TCPListener)

// WithTCPLogger attaches a logger.
func WithTCPLogger(logger common.LoggerInterface) TCPOption {
	return func(l *TCPListener) { l.logger = logger }
}

// ListenTCP binds addr:port and starts accepting Modbus TCP masters.
func ListenTCP(ctx context.Context, id common.ConnectionID, bindAddress string, port int, handler *Handler, bus *eventbus.Bus, options ...TCPOption) (*TCPListener, error) {
	listener, err := net.Listen("tcp", net.JoinHostPort(bindAddress, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	l := &TCPListener{
		id:       id,
		handler:  handler,
		bus:      bus,
		logger:   logging.NewNoopLogger(),
		listener: listener,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		clients:  NewClientSet(),
	}
	for _, opt := range options {
		opt(l)
	}
	l.logger.Info(ctx, "modbus tcp slave %s listening on %s", id, listener.Addr())
	l.emitStatus(common.ModbusStatusStarted, listener.Addr().String())
	go l.acceptLoop(ctx)
	return l, nil
}

func (l *TCPListener) ID() common.ConnectionID { return l.id }

func (l *TCPListener) Running() bool {
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

func (l *TCPListener) Close(ctx context.Context) error {
	l.logger.Info(ctx, "stopping modbus tcp slave %s", l.id)
	l.stopOnce.Do(func() {
		close(l.stop)
		l.listener.Close()
	})
	<-l.done
	l.emitStatus(common.ModbusStatusStopped, "")
	return nil
}

// Clients returns a snapshot of currently-connected masters.
func (l *TCPListener) Clients() []ClientSnapshot { return l.clients.Snapshot() }

func (l *TCPListener) acceptLoop(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-l.stop:
			return
		default:
		}
		if tcpListener, ok := l.listener.(*net.TCPListener); ok {
			tcpListener.SetDeadline(time.Now().Add(acceptPollTimeout))
		}
		conn, err := l.listener.Accept()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-l.stop:
				return
			default:
				continue
			}
		}
		clientID := common.ConnectionID(fmt.Sprintf("client-%d", l.nextClientID.Add(1)))
		l.logger.Info(ctx, "modbus tcp slave %s accepted %s from %s", l.id, clientID, conn.RemoteAddr())
		l.clients.Add(clientID, conn.RemoteAddr().String())
		l.emitClientEvent(clientID, common.ClientEventConnected)
		go l.serveConn(ctx, conn, clientID)
	}
}

func (l *TCPListener) serveConn(ctx context.Context, conn net.Conn, clientID common.ConnectionID) {
	defer func() {
		conn.Close()
		l.clients.Remove(clientID)
		l.logger.Info(ctx, "modbus tcp slave %s: %s disconnected", l.id, clientID)
		l.emitClientEvent(clientID, common.ClientEventDisconnected)
	}()

	for {
		header := make([]byte, mbap.HeaderLength)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		h, err := mbap.Decode(header)
		if err != nil {
			l.logger.Warn(ctx, "modbus tcp slave %s: %s sent invalid MBAP header: %v", l.id, clientID, err)
			continue
		}
		bodyLen := int(h.Length) - 1
		if bodyLen <= 0 || bodyLen > 252 {
			continue
		}
		body := make([]byte, bodyLen)
		if _, err := io.ReadFull(conn, body); err != nil {
			return
		}
		l.logger.Trace(ctx, "modbus tcp slave %s: %s request txid=%d unit=%d fc=%d", l.id, clientID, h.TransactionID, h.UnitID, body[0])
		if hexLogger, ok := l.logger.(common.LoggerInterfaceHexdump); ok {
			hexLogger.Hexdump(ctx, body)
		}

		l.clients.RecordRequest(clientID)
		fc := proto.FunctionCode(body[0])
		req, err := proto.ParseRequestPDU(fc, body[1:])

		var responsePDU []byte
		if err != nil {
			// Unrecognized or malformed function code: still owed a reply,
			// per spec.md §4.7 step 3's exception-mapping discipline.
			responsePDU = proto.BuildExceptionPDU(fc, proto.ExceptionIllegalFunction)
		} else {
			req.UnitID = h.UnitID
			responsePDU = l.handler.HandleRequest(req)
		}

		frame := mbap.EncodeFrame(h.TransactionID, h.UnitID, responsePDU)
		if _, err := conn.Write(frame); err != nil {
			l.logger.Warn(ctx, "modbus tcp slave %s: write to %s failed: %v", l.id, clientID, err)
			return
		}
	}
}

func (l *TCPListener) emitStatus(status, message string) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(common.Event{
		Topic: common.TopicModbusStatus,
		Payload: common.ModbusStatusPayload{
			ConnectionID: l.id,
			Status:       status,
			Message:      message,
			Timestamp:    common.NowMillis(),
		},
		Timestamp: common.NowMillis(),
	})
}

func (l *TCPListener) emitClientEvent(clientID common.ConnectionID, eventType string) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(common.Event{
		Topic: common.TopicModbusSlaveTCPClientEvent,
		Payload: common.TCPServerClientEventPayload{
			ServerID:  l.id,
			ClientID:  string(clientID),
			EventType: eventType,
			Timestamp: common.NowMillis(),
		},
		Timestamp: common.NowMillis(),
	})
}

var _ common.Endpoint = (*TCPListener)(nil)
