package master

import (
	"reflect"
	"testing"

	"github.com/vienkmt/commscore/modbus/proto"
)

func TestParseResponsePDUReadRegisters(t *testing.T) {
	req := proto.Request{FunctionCode: proto.FuncReadHoldingRegisters, Quantity: 2}
	pdu := proto.BuildReadRegistersResponsePDU(proto.FuncReadHoldingRegisters, []uint16{10, 20})
	values, coils, err := ParseResponsePDU(req, pdu)
	if err != nil {
		t.Fatalf("ParseResponsePDU: %v", err)
	}
	if coils != nil {
		t.Fatalf("expected nil coils, got %v", coils)
	}
	if !reflect.DeepEqual(values, []uint16{10, 20}) {
		t.Errorf("values = %v, want [10 20]", values)
	}
}

func TestParseResponsePDUException(t *testing.T) {
	req := proto.Request{FunctionCode: proto.FuncReadHoldingRegisters, Quantity: 2}
	pdu := proto.BuildExceptionPDU(proto.FuncReadHoldingRegisters, proto.ExceptionIllegalDataAddress)
	_, _, err := ParseResponsePDU(req, pdu)
	modbusErr, ok := proto.AsModbusError(err)
	if !ok {
		t.Fatalf("expected *proto.Error, got %v", err)
	}
	if modbusErr.ExceptionCode != proto.ExceptionIllegalDataAddress {
		t.Errorf("exception code = %v, want IllegalDataAddress", modbusErr.ExceptionCode)
	}
}

func TestParseResponsePDUFunctionMismatch(t *testing.T) {
	req := proto.Request{FunctionCode: proto.FuncReadHoldingRegisters, Quantity: 1}
	pdu := proto.BuildReadRegistersResponsePDU(proto.FuncReadInputRegisters, []uint16{1})
	if _, _, err := ParseResponsePDU(req, pdu); err != proto.ErrInvalidFunction {
		t.Errorf("err = %v, want ErrInvalidFunction", err)
	}
}
