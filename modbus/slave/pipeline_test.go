package slave

import (
	"reflect"
	"testing"
	"time"

	"github.com/vienkmt/commscore/modbus/proto"
)

func TestHandleRequestWriteThenRead(t *testing.T) {
	store := NewStore()
	handler := NewHandler(store)

	writeResp := handler.HandleRequest(proto.Request{
		FunctionCode: proto.FuncWriteSingleRegister,
		Address:      10,
		Values:       []uint16{42},
	})
	if proto.IsException(writeResp[0]) {
		t.Fatalf("unexpected exception: % x", writeResp)
	}

	readResp := handler.HandleRequest(proto.Request{
		FunctionCode: proto.FuncReadHoldingRegisters,
		Address:      10,
		Quantity:     1,
	})
	values, err := proto.ParseReadRegistersResponsePDU(readResp[1:], 1)
	if err != nil {
		t.Fatalf("ParseReadRegistersResponsePDU: %v", err)
	}
	if !reflect.DeepEqual(values, []uint16{42}) {
		t.Errorf("values = %v, want [42]", values)
	}
}

func TestHandleRequestOutOfBoundsAddress(t *testing.T) {
	handler := NewHandler(NewStore())
	resp := handler.HandleRequest(proto.Request{
		FunctionCode: proto.FuncReadHoldingRegisters,
		Address:      NumAddresses - 1,
		Quantity:     10,
	})
	if !proto.IsException(resp[0]) {
		t.Fatal("expected exception for out-of-bounds read")
	}
	if proto.ExceptionCode(resp[1]) != proto.ExceptionIllegalDataAddress {
		t.Errorf("exception = 0x%02x, want IllegalDataAddress", resp[1])
	}
}

func TestHandleRequestFaultInjection(t *testing.T) {
	store := NewStore()
	handler := NewHandler(store)
	handler.Faults = NewFaultInjector(FaultRule{
		DataType:    proto.DataTypeHoldingRegister,
		LowAddress:  0,
		HighAddress: 100,
		Exception:   proto.ExceptionSlaveDeviceFailure,
	})

	resp := handler.HandleRequest(proto.Request{
		FunctionCode: proto.FuncReadHoldingRegisters,
		Address:      5,
		Quantity:     1,
	})
	if !proto.IsException(resp[0]) {
		t.Fatal("expected injected exception")
	}
	if proto.ExceptionCode(resp[1]) != proto.ExceptionSlaveDeviceFailure {
		t.Errorf("exception = 0x%02x, want SlaveDeviceFailure", resp[1])
	}
}

func TestHandleRequestRecordsStats(t *testing.T) {
	handler := NewHandler(NewStore())
	handler.HandleRequest(proto.Request{FunctionCode: proto.FuncReadHoldingRegisters, Address: 0, Quantity: 1})
	handler.HandleRequest(proto.Request{FunctionCode: proto.FuncReadHoldingRegisters, Address: NumAddresses, Quantity: 1})

	snap := handler.Stats.Snapshot()
	if snap.Total != 2 {
		t.Fatalf("Total = %d, want 2", snap.Total)
	}
	fs := snap.PerFunction[proto.FuncReadHoldingRegisters]
	if fs.Success != 1 || fs.Errors != 1 {
		t.Errorf("fs = %+v, want Success=1 Errors=1", fs)
	}
}

func TestHandleRequestAppliesDelay(t *testing.T) {
	handler := NewHandler(NewStore())
	handler.Delay = DelayConfig{GlobalMs: 5}
	var gotDelay time.Duration
	handler.Sleep = func(d time.Duration) { gotDelay = d }

	handler.HandleRequest(proto.Request{FunctionCode: proto.FuncReadHoldingRegisters, Address: 0, Quantity: 1})

	if gotDelay != 5*time.Millisecond {
		t.Errorf("gotDelay = %v, want 5ms", gotDelay)
	}
}
