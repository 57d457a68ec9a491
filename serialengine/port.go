// Package serialengine manages physical serial ports: enumeration, open
// with gap-based reader framing, hex-tolerant writes, and graceful close.
// Built on github.com/tarm/serial, since the teacher's Modbus client/server
// stack never touches a physical port. Grounded on the teacher's
// mutex-scoped handle discipline in transport.TCPTransport and its
// Option/WithX constructor idiom.
package serialengine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tarm/serial"

	"github.com/vienkmt/commscore/common"
	"github.com/vienkmt/commscore/eventbus"
	"github.com/vienkmt/commscore/logging"
)

// readTimeout is intentionally short so the reader loop notices a cleared
// running flag promptly. Ref: spec.md §4.2 Open operation.
const readTimeout = 5 * time.Millisecond

// closeGrace is how long Close waits for the reader goroutine to observe
// the cleared running flag before the OS handle is closed.
const closeGrace = 200 * time.Millisecond

// serialHandle is the subset of *serial.Port this package depends on. The
// seam lets tests substitute a fake handle instead of opening a real OS
// port.
type serialHandle interface {
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
	Flush() error
	Close() error
}

// Port is one open serial endpoint: an OS handle, a reader goroutine, and
// the shared mutex that keeps the reader and Write from touching the
// handle concurrently.
type Port struct {
	id     common.ConnectionID
	config common.SerialConfig
	logger common.LoggerInterface
	bus    *eventbus.Bus

	handleMu sync.Mutex
	handle   serialHandle

	running atomic.Bool
	done    chan struct{}
}

// Option configures Open.
type Option func(*Port)

// WithLogger attaches a logger to the port.
func WithLogger(logger common.LoggerInterface) Option {
	return func(p *Port) { p.logger = logger }
}

// Open validates the config, opens the OS serial port, applies DTR/RTS, and
// spawns the reader goroutine. Ref: spec.md §4.2 Open operation.
func Open(ctx context.Context, id common.ConnectionID, cfg common.SerialConfig, bus *eventbus.Bus, options ...Option) (*Port, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	osCfg := &serial.Config{
		Name:        cfg.PortName,
		Baud:        cfg.BaudRate,
		ReadTimeout: readTimeout,
		Size:        byte(cfg.DataBits),
		Parity:      parityFor(cfg.Parity),
		StopBits:    stopBitsFor(cfg.StopBits),
	}

	p := &Port{
		id:     id,
		config: cfg,
		logger: logging.NewNoopLogger(),
		bus:    bus,
		done:   make(chan struct{}),
	}
	for _, opt := range options {
		opt(p)
	}

	handle, err := serial.OpenPort(osCfg)
	if err != nil {
		if common.IsBusyIndicator(err.Error()) {
			p.logger.Error(ctx, "serial port %s busy: %v", cfg.PortName, err)
			return nil, &common.BusyError{PortName: cfg.PortName}
		}
		p.logger.Error(ctx, "failed to open serial port %s: %v", cfg.PortName, err)
		return nil, fmt.Errorf("ERROR:%s:%s", cfg.PortName, err.Error())
	}
	p.handle = handle

	p.applyControlLines(ctx, handle, cfg)

	p.running.Store(true)
	p.logger.Info(ctx, "opened serial port %s at %d baud", cfg.PortName, cfg.BaudRate)
	go p.readLoop(ctx)
	return p, nil
}

func validateConfig(cfg common.SerialConfig) error {
	switch cfg.DataBits {
	case 5, 6, 7, 8:
	default:
		return &common.ConfigError{Field: "data_bits", Err: common.ErrInvalidDataBits}
	}
	switch cfg.StopBits {
	case "1", "1.5", "2":
	default:
		return &common.ConfigError{Field: "stop_bits", Err: common.ErrInvalidStopBits}
	}
	switch cfg.Parity {
	case common.ParityNone, common.ParityOdd, common.ParityEven:
	default:
		return &common.ConfigError{Field: "parity", Err: common.ErrInvalidParity}
	}
	return nil
}

// stopBitsFor maps the config's stop_bits string to tarm/serial's StopBits,
// rounding 1.5 up to 2 since typical drivers have no 1.5-bit mode.
// Ref: spec.md §3 Serial configuration.
func stopBitsFor(stopBits string) serial.StopBits {
	switch stopBits {
	case "2", "1.5":
		return serial.Stop2
	default:
		return serial.Stop1
	}
}

func parityFor(parity string) serial.Parity {
	switch parity {
	case common.ParityOdd:
		return serial.ParityOdd
	case common.ParityEven:
		return serial.ParityEven
	default:
		return serial.ParityNone
	}
}

// applyControlLines best-effort sets DTR/RTS. tarm/serial does not expose
// these portably across platforms, so this is a documented limitation: the
// lines are accepted in config but not driven on this backend. A caller
// that asked for either line gets a warning instead of a silent drop.
func (p *Port) applyControlLines(ctx context.Context, handle *serial.Port, cfg common.SerialConfig) {
	_ = handle
	if cfg.DTR || cfg.RTS {
		p.logger.Warn(ctx, "port %s requested DTR=%v RTS=%v but tarm/serial cannot drive control lines on this backend; ignoring", cfg.PortName, cfg.DTR, cfg.RTS)
	}
}

// ID returns the connection id this port was opened under.
func (p *Port) ID() common.ConnectionID { return p.id }

// Close clears the running flag, waits closeGrace for the reader goroutine
// to exit its current iteration, then closes the OS handle.
// Ref: spec.md §4.2 Close operation.
func (p *Port) Close() error {
	ctx := context.Background()
	p.logger.Info(ctx, "closing serial port %s", p.config.PortName)
	p.running.Store(false)
	select {
	case <-p.done:
	case <-time.After(closeGrace):
		p.logger.Warn(ctx, "serial port %s reader did not exit within %s", p.config.PortName, closeGrace)
	}
	p.handleMu.Lock()
	defer p.handleMu.Unlock()
	return p.handle.Close()
}
