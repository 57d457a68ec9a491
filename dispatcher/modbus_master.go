package dispatcher

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/vienkmt/commscore/common"
	"github.com/vienkmt/commscore/modbus/master"
	"github.com/vienkmt/commscore/modbus/proto"
)

// defaultMasterTimeout is used when a command doesn't override it.
const defaultMasterTimeout = master.DefaultResponseTimeout

// modbusMasterHandle wraps whichever transport backs one master connection
// id, so Core's registry doesn't need to distinguish TCP from RTU.
type modbusMasterHandle struct {
	id       common.ConnectionID
	unitID   byte
	executor master.Executor
	closer   func(context.Context) error
}

func (h *modbusMasterHandle) close(ctx context.Context) error {
	return h.closer(ctx)
}

// ModbusMasterConnect dials a slave over TCP or RTU per cfg.Transport. Ref:
// spec.md §6 modbus_master_* / §4.6.
func (c *Core) ModbusMasterConnect(ctx context.Context, cfg common.ModbusMasterConfig) Result {
	if c.modbusMasters.Has(string(cfg.ConnectionID)) {
		return Err(common.ErrAlreadyOpen)
	}

	var handle *modbusMasterHandle
	switch cfg.Transport {
	case common.ModbusTransportRTU:
		client, err := master.DialRTU(ctx, cfg.ConnectionID, cfg.Serial, cfg.UnitID, master.WithRTULogger(c.Logger))
		if err != nil {
			return Err(err)
		}
		handle = &modbusMasterHandle{id: cfg.ConnectionID, unitID: cfg.UnitID, executor: client, closer: client.Close}

	case common.ModbusTransportTCP:
		addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
		client, err := master.DialTCP(ctx, cfg.ConnectionID, addr, master.WithLogger(c.Logger))
		if err != nil {
			return Err(err)
		}
		handle = &modbusMasterHandle{id: cfg.ConnectionID, unitID: cfg.UnitID, executor: client, closer: client.Close}

	default:
		return Err(fmt.Errorf("modbus master: unknown transport %q", cfg.Transport))
	}

	if !c.modbusMasters.Put(string(cfg.ConnectionID), handle) {
		handle.close(ctx)
		return Err(common.ErrAlreadyOpen)
	}
	return Ok(fmt.Sprintf("connected %s", cfg.ConnectionID))
}

// ModbusMasterDisconnect closes a master's transport. Ref: spec.md §6
// modbus_master_disconnect.
func (c *Core) ModbusMasterDisconnect(ctx context.Context, id common.ConnectionID) Result {
	handle, ok := c.modbusMasters.Remove(string(id))
	if !ok {
		return Err(common.ErrNotFound)
	}
	if err := handle.close(ctx); err != nil {
		return Err(err)
	}
	return Ok(fmt.Sprintf("disconnected %s", id))
}

func (c *Core) masterHandle(id common.ConnectionID) (*modbusMasterHandle, bool) {
	return c.modbusMasters.Get(string(id))
}

// resolveUnitID resolves a per-call unit id override, falling back to the
// handle's configured default when 0 is passed (no valid Modbus unit id on
// a real bus is 0 except the broadcast address, which a master never reads
// from, so 0 safely means "unspecified").
func resolveUnitID(h *modbusMasterHandle, unitID byte) byte {
	if unitID != 0 {
		return unitID
	}
	return h.unitID
}

// ModbusMasterReadCoils issues an FC01 read. Ref: spec.md §4.6.
func (c *Core) ModbusMasterReadCoils(ctx context.Context, id common.ConnectionID, unitID byte, address, quantity uint16) ([]bool, error) {
	h, ok := c.masterHandle(id)
	if !ok {
		return nil, common.ErrNotFound
	}
	req, err := master.ReadRequest(resolveUnitID(h, unitID), proto.FuncReadCoils, address, quantity)
	if err != nil {
		return nil, err
	}
	result := h.executor.Execute(ctx, req, defaultMasterTimeout)
	return result.Coils, result.Err
}

// ModbusMasterReadDiscreteInputs issues an FC02 read.
func (c *Core) ModbusMasterReadDiscreteInputs(ctx context.Context, id common.ConnectionID, unitID byte, address, quantity uint16) ([]bool, error) {
	h, ok := c.masterHandle(id)
	if !ok {
		return nil, common.ErrNotFound
	}
	req, err := master.ReadRequest(resolveUnitID(h, unitID), proto.FuncReadDiscreteInputs, address, quantity)
	if err != nil {
		return nil, err
	}
	result := h.executor.Execute(ctx, req, defaultMasterTimeout)
	return result.Coils, result.Err
}

// ModbusMasterReadHoldingRegisters issues an FC03 read.
func (c *Core) ModbusMasterReadHoldingRegisters(ctx context.Context, id common.ConnectionID, unitID byte, address, quantity uint16) ([]uint16, error) {
	h, ok := c.masterHandle(id)
	if !ok {
		return nil, common.ErrNotFound
	}
	req, err := master.ReadRequest(resolveUnitID(h, unitID), proto.FuncReadHoldingRegisters, address, quantity)
	if err != nil {
		return nil, err
	}
	result := h.executor.Execute(ctx, req, defaultMasterTimeout)
	return result.Values, result.Err
}

// ModbusMasterReadInputRegisters issues an FC04 read.
func (c *Core) ModbusMasterReadInputRegisters(ctx context.Context, id common.ConnectionID, unitID byte, address, quantity uint16) ([]uint16, error) {
	h, ok := c.masterHandle(id)
	if !ok {
		return nil, common.ErrNotFound
	}
	req, err := master.ReadRequest(resolveUnitID(h, unitID), proto.FuncReadInputRegisters, address, quantity)
	if err != nil {
		return nil, err
	}
	result := h.executor.Execute(ctx, req, defaultMasterTimeout)
	return result.Values, result.Err
}

// ModbusMasterWriteSingleCoil issues an FC05 write.
func (c *Core) ModbusMasterWriteSingleCoil(ctx context.Context, id common.ConnectionID, unitID byte, address uint16, value bool) Result {
	h, ok := c.masterHandle(id)
	if !ok {
		return Err(common.ErrNotFound)
	}
	req := master.WriteSingleCoilRequest(resolveUnitID(h, unitID), address, value)
	result := h.executor.Execute(ctx, req, defaultMasterTimeout)
	if result.Err != nil {
		return Err(result.Err)
	}
	return Ok(fmt.Sprintf("wrote coil %d", address))
}

// ModbusMasterWriteSingleRegister issues an FC06 write.
func (c *Core) ModbusMasterWriteSingleRegister(ctx context.Context, id common.ConnectionID, unitID byte, address, value uint16) Result {
	h, ok := c.masterHandle(id)
	if !ok {
		return Err(common.ErrNotFound)
	}
	req := master.WriteSingleRegisterRequest(resolveUnitID(h, unitID), address, value)
	result := h.executor.Execute(ctx, req, defaultMasterTimeout)
	if result.Err != nil {
		return Err(result.Err)
	}
	return Ok(fmt.Sprintf("wrote register %d", address))
}

// ModbusMasterWriteMultipleCoils issues an FC15 write.
func (c *Core) ModbusMasterWriteMultipleCoils(ctx context.Context, id common.ConnectionID, unitID byte, address uint16, values []bool) Result {
	h, ok := c.masterHandle(id)
	if !ok {
		return Err(common.ErrNotFound)
	}
	req, err := master.WriteMultipleCoilsRequest(resolveUnitID(h, unitID), address, values)
	if err != nil {
		return Err(err)
	}
	result := h.executor.Execute(ctx, req, defaultMasterTimeout)
	if result.Err != nil {
		return Err(result.Err)
	}
	return Ok(fmt.Sprintf("wrote %d coils at %d", len(values), address))
}

// ModbusMasterWriteMultipleRegisters issues an FC16 write.
func (c *Core) ModbusMasterWriteMultipleRegisters(ctx context.Context, id common.ConnectionID, unitID byte, address uint16, values []uint16) Result {
	h, ok := c.masterHandle(id)
	if !ok {
		return Err(common.ErrNotFound)
	}
	req, err := master.WriteMultipleRegistersRequest(resolveUnitID(h, unitID), address, values)
	if err != nil {
		return Err(err)
	}
	result := h.executor.Execute(ctx, req, defaultMasterTimeout)
	if result.Err != nil {
		return Err(result.Err)
	}
	return Ok(fmt.Sprintf("wrote %d registers at %d", len(values), address))
}

// ModbusMasterStartPolling runs a round-robin polling schedule in the
// background until ctx is cancelled. Ref: spec.md §4.6 polling scheduler.
func (c *Core) ModbusMasterStartPolling(ctx context.Context, id common.ConnectionID, entries []master.PollEntry, interval time.Duration, baudRate int) Result {
	h, ok := c.masterHandle(id)
	if !ok {
		return Err(common.ErrNotFound)
	}
	scheduler := master.NewScheduler(h.executor, entries, interval, master.WithBaudRate(baudRate))
	go scheduler.Run(ctx)
	return Ok(fmt.Sprintf("polling started on %s", id))
}

// IsModbusMasterConnected reports whether id's transport is still alive.
func (c *Core) IsModbusMasterConnected(id common.ConnectionID) bool {
	h, ok := c.masterHandle(id)
	if !ok {
		return false
	}
	type runner interface{ Running() bool }
	if r, ok := h.executor.(runner); ok {
		return r.Running()
	}
	return true
}
