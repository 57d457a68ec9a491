// RTU transport for a Modbus slave: a dedicated serial reader that frames
// requests by inter-character silence instead of serialengine's generic
// gap-based byte batching, since RTU frame boundaries are a protocol rule
// (3.5 character times) rather than a configurable batching knob.
// Grounded on serialengine.Port's handle-mutex/readLoop shape, generalized
// from byte-stream passthrough to frame parsing and a scoped write-back.
package slave

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tarm/serial"

	"github.com/vienkmt/commscore/common"
	"github.com/vienkmt/commscore/eventbus"
	"github.com/vienkmt/commscore/logging"
	"github.com/vienkmt/commscore/modbus/proto"
	"github.com/vienkmt/commscore/modbus/rtu"
)

// rtuReadTimeout mirrors serialengine's short poll so the running flag is
// checked promptly.
const rtuReadTimeout = 5 * time.Millisecond

// rtuHandle is the subset of *serial.Port this listener depends on, mirroring
// serialengine's testability seam.
type rtuHandle interface {
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
	Close() error
}

// RTUListener is a Modbus RTU slave bound to one serial port, responding
// only to its own unit id (broadcast frames, unit id 0, get no reply).
// Ref: spec.md §4.6/§4.7.
type RTUListener struct {
	id       common.ConnectionID
	unitID   byte
	handler  *Handler
	bus      *eventbus.Bus
	logger   common.LoggerInterface

	handleMu sync.Mutex
	handle   rtuHandle

	running atomic.Bool
	done    chan struct{}
}

// RTUOption configures an RTUListener.
type RTUOption func(*RTUListener)

// WithRTULogger attaches a logger.
func WithRTULogger(logger common.LoggerInterface) RTUOption {
	return func(l *RTUListener) { l.logger = logger }
}

// ListenRTU opens cfg's serial port and starts answering unitID on it.
func ListenRTU(ctx context.Context, id common.ConnectionID, cfg common.SerialConfig, unitID byte, handler *Handler, bus *eventbus.Bus, options ...RTUOption) (*RTUListener, error) {
	osCfg := &serial.Config{
		Name:        cfg.PortName,
		Baud:        cfg.BaudRate,
		ReadTimeout: rtuReadTimeout,
	}
	handle, err := serial.OpenPort(osCfg)
	if err != nil {
		if common.IsBusyIndicator(err.Error()) {
			return nil, &common.BusyError{PortName: cfg.PortName}
		}
		return nil, fmt.Errorf("ERROR:%s:%s", cfg.PortName, err.Error())
	}
	l := newRTUListener(ctx, id, unitID, handler, bus, handle, cfg.BaudRate, options...)
	l.logger.Info(ctx, "modbus rtu slave %s listening on %s, unit id %d", id, cfg.PortName, unitID)
	return l, nil
}

// newRTUListener wires an already-open handle, letting tests drive the
// frame parser with a fake handle instead of a real serial port.
func newRTUListener(ctx context.Context, id common.ConnectionID, unitID byte, handler *Handler, bus *eventbus.Bus, handle rtuHandle, baudRate int, options ...RTUOption) *RTUListener {
	l := &RTUListener{
		id:      id,
		unitID:  unitID,
		handler: handler,
		bus:     bus,
		logger:  logging.NewNoopLogger(),
		handle:  handle,
		done:    make(chan struct{}),
	}
	for _, opt := range options {
		opt(l)
	}
	l.running.Store(true)
	l.emitStatus(common.ModbusStatusStarted, "")
	go l.readLoop(ctx, baudRate)
	return l
}

func (l *RTUListener) ID() common.ConnectionID { return l.id }

func (l *RTUListener) Running() bool { return l.running.Load() }

// Close stops the reader loop and closes the serial handle.
// Ref: spec.md §4.2 Close operation's 200ms grace discipline, reused here
// since an RTU slave owns its serial port the same way the Serial Engine does.
func (l *RTUListener) Close(ctx context.Context) error {
	l.logger.Info(ctx, "closing modbus rtu slave %s", l.id)
	l.running.Store(false)
	select {
	case <-l.done:
	case <-time.After(200 * time.Millisecond):
	}
	l.handleMu.Lock()
	defer l.handleMu.Unlock()
	err := l.handle.Close()
	l.emitStatus(common.ModbusStatusStopped, "")
	return err
}

func (l *RTUListener) emitStatus(status, message string) {
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

// readLoop accumulates bytes until the RTU inter-frame silence elapses, then
// treats the buffer as one frame: verify CRC, dispatch if addressed to this
// unit, and write the response before resuming accumulation.
func (l *RTUListener) readLoop(ctx context.Context, baudRate int) {
	defer close(l.done)

	gap := rtu.InterFrameDelay(baudRate)
	l.logger.Debug(ctx, "modbus rtu slave %s read loop starting, inter-frame gap=%s", l.id, gap)
	defer l.logger.Debug(ctx, "modbus rtu slave %s read loop exiting", l.id)

	var pending []byte
	var lastByte time.Time
	buf := make([]byte, 256)

	for l.running.Load() {
		l.handleMu.Lock()
		n, err := l.handle.Read(buf)
		l.handleMu.Unlock()

		if err != nil {
			if isSerialTimeout(err) {
				if len(pending) > 0 && time.Since(lastByte) >= gap {
					l.handleFrame(ctx, pending)
					pending = nil
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				l.logger.Info(ctx, "modbus rtu slave %s serial port closed (eof)", l.id)
				return
			}
			l.logger.Error(ctx, "modbus rtu slave %s read error: %v", l.id, err)
			return
		}

		if n > 0 {
			pending = append(pending, buf[:n]...)
			lastByte = time.Now()
		}
	}
}

func (l *RTUListener) handleFrame(ctx context.Context, frame []byte) {
	l.logger.Trace(ctx, "modbus rtu slave %s received frame (%d bytes)", l.id, len(frame))
	if hexLogger, ok := l.logger.(common.LoggerInterfaceHexdump); ok {
		hexLogger.Hexdump(ctx, frame)
	}

	slaveID, pdu, err := rtu.Unpack(frame)
	if err != nil {
		l.logger.Warn(ctx, "modbus rtu slave %s discarding frame: %v", l.id, err)
		return
	}
	if slaveID != l.unitID {
		return
	}
	if len(pdu) == 0 {
		return
	}

	fc := proto.FunctionCode(pdu[0])
	req, err := proto.ParseRequestPDU(fc, pdu[1:])

	var responsePDU []byte
	if err != nil {
		responsePDU = proto.BuildExceptionPDU(fc, proto.ExceptionIllegalFunction)
	} else {
		req.UnitID = slaveID
		responsePDU = l.handler.HandleRequest(req)
	}

	response, err := rtu.Pack(slaveID, responsePDU)
	if err != nil {
		l.logger.Error(ctx, "modbus rtu slave %s failed to encode response: %v", l.id, err)
		return
	}
	l.logger.Trace(ctx, "modbus rtu slave %s sending response (%d bytes)", l.id, len(response))
	if hexLogger, ok := l.logger.(common.LoggerInterfaceHexdump); ok {
		hexLogger.Hexdump(ctx, response)
	}
	l.handleMu.Lock()
	l.handle.Write(response)
	l.handleMu.Unlock()
}

func isSerialTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	var t timeouter
	if errors.As(err, &t) {
		return t.Timeout()
	}
	return false
}

var _ common.Endpoint = (*RTUListener)(nil)
