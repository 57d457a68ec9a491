package dispatcher

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/vienkmt/commscore/common"
	"github.com/vienkmt/commscore/serialengine"
)

// ListSerialPorts enumerates USB serial ports visible to this platform.
func (c *Core) ListSerialPorts() ([]common.SerialPortDescriptor, error) {
	return serialengine.List(filepath.Glob)
}

// OpenPort opens a serial port and spawns its reader. Ref: spec.md §6
// open_port.
func (c *Core) OpenPort(ctx context.Context, cfg common.SerialConfig) Result {
	id := normalizePortName(cfg.PortName)

	if c.serialPorts.Has(string(id)) {
		return Err(common.ErrAlreadyOpen)
	}

	port, err := serialengine.Open(ctx, id, cfg, c.Bus, serialengine.WithLogger(c.Logger))
	if err != nil {
		if busyErr, ok := err.(*common.BusyError); ok {
			return Err(busyErr)
		}
		return Err(err)
	}

	if !c.serialPorts.Put(string(id), port) {
		port.Close()
		return Err(common.ErrAlreadyOpen)
	}
	return Ok(fmt.Sprintf("opened %s", cfg.PortName))
}

// ClosePort stops the reader and closes the OS handle. Ref: spec.md §6
// close_port.
func (c *Core) ClosePort(portName string) Result {
	id := normalizePortName(portName)

	port, ok := c.serialPorts.Remove(string(id))
	if !ok {
		return Err(common.ErrNotFound)
	}
	if err := port.Close(); err != nil {
		return Err(err)
	}
	return Ok(fmt.Sprintf("closed %s", portName))
}

// SendData writes to an open port, optionally hex-decoding the payload and
// pacing it byte-by-byte. Ref: spec.md §6 send_data.
func (c *Core) SendData(portName string, payload string, isHex bool, byteDelayUs int) Result {
	id := normalizePortName(portName)

	port, ok := c.serialPorts.Get(string(id))
	if !ok {
		return Err(common.ErrNotFound)
	}

	if err := port.Write(payload, isHex, time.Duration(byteDelayUs)*time.Microsecond); err != nil {
		return Err(err)
	}
	return Ok(fmt.Sprintf("wrote to %s", portName))
}

// IsPortOpen reports whether portName has a live registered endpoint.
func (c *Core) IsPortOpen(portName string) bool {
	id := normalizePortName(portName)
	return c.serialPorts.Has(string(id))
}
