package slave

import (
	"time"

	"github.com/vienkmt/commscore/modbus/proto"
)

// Handler runs the request pipeline: exception mapping, bounds checks,
// application of the operation, response construction, and the configured
// response delay. Ref: spec.md §4.7 request processing pipeline.
type Handler struct {
	Store   *Store
	Faults  *FaultInjector
	Delay   DelayConfig
	Stats   *Stats
	OnChange func(dataType proto.DataType, address uint16, quantity uint16)
	// OnRequest, if set, is called once per request with the outcome,
	// letting a transport-agnostic caller publish a request-observed event.
	OnRequest func(req proto.Request, exception bool)
	Sleep   func(time.Duration) // overridable for tests
}

// NewHandler builds a Handler with default (no-op) fault injection and delay.
func NewHandler(store *Store) *Handler {
	return &Handler{
		Store:  store,
		Faults: NewFaultInjector(),
		Stats:  NewStats(),
		Sleep:  time.Sleep,
	}
}

// HandleRequest runs req through the full pipeline and returns the
// response PDU (starting with the function code byte), or a built
// exception PDU. The caller is responsible for wrapping
// the result in an RTU or MBAP frame.
func (h *Handler) HandleRequest(req proto.Request) []byte {
	started := time.Now()
	success := true
	result := h.process(req)
	if proto.IsException(result[0]) {
		success = false
	}
	if h.Stats != nil {
		h.Stats.Record(req.FunctionCode, success, time.Since(started))
	}
	if h.OnRequest != nil {
		h.OnRequest(req, !success)
	}
	if h.Delay.GlobalMs != 0 || len(h.Delay.PerFuncMs) > 0 || h.Delay.MaxMs > 0 {
		if d := h.Delay.Compute(req.FunctionCode); d > 0 && h.Sleep != nil {
			h.Sleep(d)
		}
	}
	return result
}

func (h *Handler) process(req proto.Request) []byte {
	dataType, ok := proto.DataTypeForFunction(req.FunctionCode)
	if !ok {
		return proto.BuildExceptionPDU(req.FunctionCode, proto.ExceptionIllegalFunction)
	}

	if h.Faults != nil {
		if code, matched := h.Faults.Match(dataType, req.Address); matched {
			return proto.BuildExceptionPDU(req.FunctionCode, code)
		}
	}

	if !InBounds(req.Address, req.Quantity) {
		return proto.BuildExceptionPDU(req.FunctionCode, proto.ExceptionIllegalDataAddress)
	}

	switch req.FunctionCode {
	case proto.FuncReadCoils:
		values := h.Store.ReadCoils(req.Address, req.Quantity)
		return proto.BuildReadCoilsResponsePDU(req.FunctionCode, values)

	case proto.FuncReadDiscreteInputs:
		values := h.Store.ReadDiscreteInputs(req.Address, req.Quantity)
		return proto.BuildReadCoilsResponsePDU(req.FunctionCode, values)

	case proto.FuncReadHoldingRegisters:
		values := h.Store.ReadHoldingRegisters(req.Address, req.Quantity)
		return proto.BuildReadRegistersResponsePDU(req.FunctionCode, values)

	case proto.FuncReadInputRegisters:
		values := h.Store.ReadInputRegisters(req.Address, req.Quantity)
		return proto.BuildReadRegistersResponsePDU(req.FunctionCode, values)

	case proto.FuncWriteSingleCoil:
		if len(req.Coils) != 1 {
			return proto.BuildExceptionPDU(req.FunctionCode, proto.ExceptionIllegalDataValue)
		}
		h.Store.WriteCoil(req.Address, req.Coils[0])
		h.notifyChange(dataType, req.Address, 1)
		value := proto.CoilOffU16
		if req.Coils[0] {
			value = proto.CoilOnU16
		}
		return proto.BuildEchoResponsePDU(req.FunctionCode, req.Address, value)

	case proto.FuncWriteSingleRegister:
		if len(req.Values) != 1 {
			return proto.BuildExceptionPDU(req.FunctionCode, proto.ExceptionIllegalDataValue)
		}
		h.Store.WriteHoldingRegister(req.Address, req.Values[0])
		h.notifyChange(dataType, req.Address, 1)
		return proto.BuildEchoResponsePDU(req.FunctionCode, req.Address, req.Values[0])

	case proto.FuncWriteMultipleCoils:
		if req.Quantity == 0 || req.Quantity > proto.MaxWriteMultipleCoils || int(req.Quantity) != len(req.Coils) {
			return proto.BuildExceptionPDU(req.FunctionCode, proto.ExceptionIllegalDataValue)
		}
		h.Store.WriteCoils(req.Address, req.Coils)
		h.notifyChange(dataType, req.Address, req.Quantity)
		return proto.BuildEchoResponsePDU(req.FunctionCode, req.Address, req.Quantity)

	case proto.FuncWriteMultipleRegisters:
		if req.Quantity == 0 || req.Quantity > proto.MaxWriteMultipleRegisters || int(req.Quantity) != len(req.Values) {
			return proto.BuildExceptionPDU(req.FunctionCode, proto.ExceptionIllegalDataValue)
		}
		h.Store.WriteHoldingRegisters(req.Address, req.Values)
		h.notifyChange(dataType, req.Address, req.Quantity)
		return proto.BuildEchoResponsePDU(req.FunctionCode, req.Address, req.Quantity)

	default:
		return proto.BuildExceptionPDU(req.FunctionCode, proto.ExceptionIllegalFunction)
	}
}

func (h *Handler) notifyChange(dataType proto.DataType, address, quantity uint16) {
	if h.OnChange != nil {
		h.OnChange(dataType, address, quantity)
	}
}
