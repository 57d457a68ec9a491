// RTU Executor for the Modbus master role: one serial handle, no
// transaction id (RTU is strictly half-duplex — one request outstanding at
// a time), so Execute just writes the frame and blocks the reader inline.
// Grounded on serialengine's handle-mutex discipline, generalized from an
// event-emitting reader to a request/response Executor.
package master

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/vienkmt/commscore/common"
	"github.com/vienkmt/commscore/logging"
	"github.com/vienkmt/commscore/modbus/proto"
	"github.com/vienkmt/commscore/modbus/rtu"
)

func isSerialTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	var t timeouter
	if errors.As(err, &t) {
		return t.Timeout()
	}
	return false
}

// rtuClientHandle is the subset of *serial.Port this client depends on.
type rtuClientHandle interface {
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
	Close() error
}

// RTUClient executes Modbus requests over one RTU bus.
type RTUClient struct {
	id       common.ConnectionID
	unitID   byte
	baudRate int
	logger   common.LoggerInterface

	mu      sync.Mutex
	handle  rtuClientHandle
	closed  bool
	done    chan struct{}
}

// RTUOption configures an RTUClient.
type RTUOption func(*RTUClient)

// WithRTULogger attaches a logger.
func WithRTULogger(logger common.LoggerInterface) RTUOption {
	return func(c *RTUClient) { c.logger = logger }
}

// DialRTU opens the serial port described by cfg for Modbus RTU master use.
func DialRTU(ctx context.Context, id common.ConnectionID, cfg common.SerialConfig, unitID byte, options ...RTUOption) (*RTUClient, error) {
	osCfg := &serial.Config{
		Name:        cfg.PortName,
		Baud:        cfg.BaudRate,
		ReadTimeout: 200 * time.Millisecond,
	}
	handle, err := serial.OpenPort(osCfg)
	if err != nil {
		if common.IsBusyIndicator(err.Error()) {
			return nil, &common.BusyError{PortName: cfg.PortName}
		}
		return nil, fmt.Errorf("ERROR:%s:%s", cfg.PortName, err.Error())
	}
	c := &RTUClient{
		id:       id,
		unitID:   unitID,
		baudRate: cfg.BaudRate,
		logger:   logging.NewNoopLogger(),
		handle:   handle,
		done:     make(chan struct{}),
	}
	for _, opt := range options {
		opt(c)
	}
	c.logger.Info(ctx, "modbus rtu master %s opened %s, unit id %d", id, cfg.PortName, unitID)
	return c, nil
}

func (c *RTUClient) ID() common.ConnectionID { return c.id }

func (c *RTUClient) Running() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func (c *RTUClient) Close(ctx context.Context) error {
	c.logger.Info(ctx, "closing modbus rtu master %s", c.id)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	return c.handle.Close()
}

// Execute writes req's RTU frame and blocks, reading bytes until a full
// frame is assembled or timeout elapses. The bus is half-duplex, so the
// handle mutex is held for the whole round trip; concurrent Execute calls
// serialize naturally.
func (c *RTUClient) Execute(ctx context.Context, req proto.Request, timeout time.Duration) Result {
	pdu, err := proto.BuildPDU(req)
	if err != nil {
		return Result{Err: err}
	}
	frame, err := rtu.Pack(req.UnitID, pdu)
	if err != nil {
		return Result{Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Result{Err: fmt.Errorf("modbus: rtu client closed")}
	}

	c.logger.Debug(ctx, "modbus rtu master %s sending unit=%d function=%d", c.id, req.UnitID, req.FunctionCode)
	if hexLogger, ok := c.logger.(common.LoggerInterfaceHexdump); ok {
		hexLogger.Hexdump(ctx, frame)
	}

	if _, err := c.handle.Write(frame); err != nil {
		c.logger.Error(ctx, "modbus rtu master %s write failed: %v", c.id, err)
		return Result{Err: err}
	}

	response, err := c.readFrame(timeout)
	if err != nil {
		c.logger.Warn(ctx, "modbus rtu master %s no response: %v", c.id, err)
		return Result{Err: err}
	}
	c.logger.Trace(ctx, "modbus rtu master %s received response (%d bytes)", c.id, len(response))
	if hexLogger, ok := c.logger.(common.LoggerInterfaceHexdump); ok {
		hexLogger.Hexdump(ctx, response)
	}

	slaveID, responsePDU, err := rtu.Unpack(response)
	if err != nil {
		c.logger.Warn(ctx, "modbus rtu master %s discarding response: %v", c.id, err)
		return Result{Err: err}
	}
	if slaveID != req.UnitID {
		return Result{Err: fmt.Errorf("modbus: response from unit %d, expected %d", slaveID, req.UnitID)}
	}
	values, coils, err := ParseResponsePDU(req, responsePDU)
	return Result{Values: values, Coils: coils, Err: err}
}

// readFrame accumulates bytes until the RTU inter-frame silence elapses or
// the deadline passes, mirroring the slave's frame delimiter.
func (c *RTUClient) readFrame(timeout time.Duration) ([]byte, error) {
	gap := rtu.InterFrameDelay(c.baudRate)
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 256)
	var frame []byte
	var lastByte time.Time

	for time.Now().Before(deadline) {
		n, err := c.handle.Read(buf)
		if err != nil {
			if isSerialTimeout(err) {
				if len(frame) > 0 && time.Since(lastByte) >= gap {
					return frame, nil
				}
				continue
			}
			return nil, err
		}
		if n > 0 {
			frame = append(frame, buf[:n]...)
			lastByte = time.Now()
		}
	}
	if len(frame) > 0 {
		return frame, nil
	}
	return nil, fmt.Errorf("modbus: request timed out after %v", timeout)
}

var _ common.Endpoint = (*RTUClient)(nil)
var _ Executor = (*RTUClient)(nil)
