package dispatcher

import (
	"context"
	"fmt"

	"github.com/vienkmt/commscore/common"
	"github.com/vienkmt/commscore/modbus/proto"
	"github.com/vienkmt/commscore/modbus/slave"
)

// modbusSlaveHandle bundles one slave instance's data store, pipeline, and
// whichever transport (TCP or RTU) exposes it, plus the simulation runner's
// cancel func.
type modbusSlaveHandle struct {
	id        common.ConnectionID
	store     *slave.Store
	handler   *slave.Handler
	endpoint  common.Endpoint
	simCancel context.CancelFunc
}

func (h *modbusSlaveHandle) close(ctx context.Context) error {
	if h.simCancel != nil {
		h.simCancel()
	}
	return h.endpoint.Close(ctx)
}

// ModbusSlaveStart builds a store and pipeline and starts serving it over
// TCP or RTU per cfg.Transport. Ref: spec.md §6 modbus_slave_start / §4.7.
func (c *Core) ModbusSlaveStart(ctx context.Context, cfg common.ModbusSlaveConfig) Result {
	if c.modbusSlaves.Has(string(cfg.ConnectionID)) {
		return Err(common.ErrAlreadyOpen)
	}

	store := slave.NewStore()
	handler := slave.NewHandler(store)
	handler.OnChange = func(dataType proto.DataType, address, quantity uint16) {
		c.emitModbusDataChanged(cfg.ConnectionID, dataType, address, quantity)
	}
	handler.OnRequest = func(req proto.Request, exception bool) {
		c.emitModbusRequest(cfg.ConnectionID, req, exception)
	}

	var endpoint common.Endpoint
	var err error
	switch cfg.Transport {
	case common.ModbusTransportTCP:
		endpoint, err = slave.ListenTCP(ctx, cfg.ConnectionID, cfg.BindAddress, cfg.Port, handler, c.Bus, slave.WithTCPLogger(c.Logger))
	case common.ModbusTransportRTU:
		endpoint, err = slave.ListenRTU(ctx, cfg.ConnectionID, cfg.Serial, cfg.UnitID, handler, c.Bus, slave.WithRTULogger(c.Logger))
	default:
		return Err(fmt.Errorf("modbus slave: unknown transport %q", cfg.Transport))
	}
	if err != nil {
		return Err(err)
	}

	handle := &modbusSlaveHandle{id: cfg.ConnectionID, store: store, handler: handler, endpoint: endpoint}

	if !c.modbusSlaves.Put(string(cfg.ConnectionID), handle) {
		handle.close(ctx)
		return Err(common.ErrAlreadyOpen)
	}
	return Ok(fmt.Sprintf("started %s", cfg.ConnectionID))
}

// ModbusSlaveStop stops the simulation runner (if any) and the transport.
// Ref: spec.md §6 modbus_slave_stop.
func (c *Core) ModbusSlaveStop(ctx context.Context, id common.ConnectionID) Result {
	handle, ok := c.modbusSlaves.Remove(string(id))
	if !ok {
		return Err(common.ErrNotFound)
	}
	if err := handle.close(ctx); err != nil {
		return Err(err)
	}
	return Ok(fmt.Sprintf("stopped %s", id))
}

func (c *Core) slaveHandle(id common.ConnectionID) (*modbusSlaveHandle, bool) {
	return c.modbusSlaves.Get(string(id))
}

// ModbusSlaveReadHoldingRegisters reads directly from the backing store,
// bypassing the wire pipeline, for shell introspection. Ref: spec.md §6
// modbus_slave_read.
func (c *Core) ModbusSlaveReadHoldingRegisters(id common.ConnectionID, address, quantity uint16) ([]uint16, error) {
	h, ok := c.slaveHandle(id)
	if !ok {
		return nil, common.ErrNotFound
	}
	return h.store.ReadHoldingRegisters(address, quantity), nil
}

// ModbusSlaveReadCoils reads directly from the backing store.
func (c *Core) ModbusSlaveReadCoils(id common.ConnectionID, address, quantity uint16) ([]bool, error) {
	h, ok := c.slaveHandle(id)
	if !ok {
		return nil, common.ErrNotFound
	}
	return h.store.ReadCoils(address, quantity), nil
}

// ModbusSlaveWriteHoldingRegister writes directly into the backing store.
// Ref: spec.md §6 modbus_slave_write.
func (c *Core) ModbusSlaveWriteHoldingRegister(id common.ConnectionID, address, value uint16) Result {
	h, ok := c.slaveHandle(id)
	if !ok {
		return Err(common.ErrNotFound)
	}
	h.store.WriteHoldingRegister(address, value)
	c.emitModbusDataChanged(id, proto.DataTypeHoldingRegister, address, 1)
	return Ok(fmt.Sprintf("wrote register %d on %s", address, id))
}

// ModbusSlaveWriteCoil writes directly into the backing store.
func (c *Core) ModbusSlaveWriteCoil(id common.ConnectionID, address uint16, value bool) Result {
	h, ok := c.slaveHandle(id)
	if !ok {
		return Err(common.ErrNotFound)
	}
	h.store.WriteCoil(address, value)
	c.emitModbusDataChanged(id, proto.DataTypeCoil, address, 1)
	return Ok(fmt.Sprintf("wrote coil %d on %s", address, id))
}

// ModbusSlaveSetException replaces the active fault-injection rule set.
// Ref: spec.md §6 modbus_slave_set_exception.
func (c *Core) ModbusSlaveSetException(id common.ConnectionID, rules []slave.FaultRule) Result {
	h, ok := c.slaveHandle(id)
	if !ok {
		return Err(common.ErrNotFound)
	}
	h.handler.Faults.SetRules(rules)
	return Ok(fmt.Sprintf("applied %d fault rules to %s", len(rules), id))
}

// ModbusSlaveSetDelay replaces the active response-delay configuration.
func (c *Core) ModbusSlaveSetDelay(id common.ConnectionID, delay slave.DelayConfig) Result {
	h, ok := c.slaveHandle(id)
	if !ok {
		return Err(common.ErrNotFound)
	}
	h.handler.Delay = delay
	return Ok(fmt.Sprintf("applied delay config to %s", id))
}

// ModbusSlaveSetSimulation (re)starts the background simulation runner for
// id with sims, cancelling any previously running one. Ref: spec.md §6
// modbus_slave_set_simulation / §4.7 simulation loop.
func (c *Core) ModbusSlaveSetSimulation(ctx context.Context, id common.ConnectionID, sims []*slave.Simulation) Result {
	h, ok := c.slaveHandle(id)
	if !ok {
		return Err(common.ErrNotFound)
	}
	if h.simCancel != nil {
		h.simCancel()
	}
	if len(sims) == 0 {
		h.simCancel = nil
		return Ok(fmt.Sprintf("cleared simulation on %s", id))
	}

	runCtx, cancel := context.WithCancel(ctx)
	h.simCancel = cancel
	runner := slave.NewSimulationRunner(h.store, sims, func(dataType proto.DataType, address, quantity uint16) {
		c.emitModbusDataChanged(id, dataType, address, quantity)
	})
	go runner.Run(runCtx)
	return Ok(fmt.Sprintf("started %d simulations on %s", len(sims), id))
}

// ModbusSlaveGetStats returns the current statistics snapshot. Ref:
// spec.md §6 modbus_slave_get_stats.
func (c *Core) ModbusSlaveGetStats(id common.ConnectionID) (slave.Snapshot, error) {
	h, ok := c.slaveHandle(id)
	if !ok {
		return slave.Snapshot{}, common.ErrNotFound
	}
	return h.handler.Stats.Snapshot(), nil
}

// IsModbusSlaveRunning reports whether id's transport is still alive.
func (c *Core) IsModbusSlaveRunning(id common.ConnectionID) bool {
	h, ok := c.slaveHandle(id)
	if !ok {
		return false
	}
	return h.endpoint.Running()
}

func (c *Core) emitModbusDataChanged(id common.ConnectionID, dataType proto.DataType, address, quantity uint16) {
	if c.Bus == nil {
		return
	}
	c.Bus.Publish(common.Event{
		Topic: common.TopicModbusSlaveDataChanged,
		Payload: common.ModbusSlaveDataChangedPayload{
			ConnectionID: id,
			DataType:     dataType.String(),
			Address:      address,
			Quantity:     quantity,
			Timestamp:    common.NowMillis(),
		},
		Timestamp: common.NowMillis(),
	})
}

func (c *Core) emitModbusRequest(id common.ConnectionID, req proto.Request, exception bool) {
	if c.Bus == nil {
		return
	}
	c.Bus.Publish(common.Event{
		Topic: common.TopicModbusSlaveRequest,
		Payload: common.ModbusSlaveRequestPayload{
			ConnectionID: id,
			UnitID:       req.UnitID,
			FunctionCode: byte(req.FunctionCode),
			Address:      req.Address,
			Quantity:     req.Quantity,
			Exception:    exception,
			Timestamp:    common.NowMillis(),
		},
		Timestamp: common.NowMillis(),
	})
}
