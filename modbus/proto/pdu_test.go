package proto

import (
	"reflect"
	"testing"
)

func TestBuildParseReadRequestRoundTrip(t *testing.T) {
	req := Request{FunctionCode: FuncReadHoldingRegisters, Address: 0x0010, Quantity: 4}
	pdu, err := BuildPDU(req)
	if err != nil {
		t.Fatalf("BuildPDU: %v", err)
	}
	got, err := ParseRequestPDU(FunctionCode(pdu[0]), pdu[1:])
	if err != nil {
		t.Fatalf("ParseRequestPDU: %v", err)
	}
	if got.Address != req.Address || got.Quantity != req.Quantity {
		t.Errorf("got %+v, want %+v", got, req)
	}
}

func TestBuildPDURejectsOversizeQuantity(t *testing.T) {
	_, err := BuildPDU(Request{FunctionCode: FuncReadCoils, Address: 0, Quantity: MaxReadQuantity + 1})
	if err == nil {
		t.Fatal("expected error for oversize read quantity")
	}
}

func TestWriteMultipleCoilsRoundTrip(t *testing.T) {
	coils := []bool{true, false, true, true, false, false, true, false, true}
	req := Request{FunctionCode: FuncWriteMultipleCoils, Address: 0x20, Coils: coils}
	pdu, err := BuildPDU(req)
	if err != nil {
		t.Fatalf("BuildPDU: %v", err)
	}
	got, err := ParseRequestPDU(FunctionCode(pdu[0]), pdu[1:])
	if err != nil {
		t.Fatalf("ParseRequestPDU: %v", err)
	}
	if !reflect.DeepEqual(got.Coils, coils) {
		t.Errorf("got coils %v, want %v", got.Coils, coils)
	}
}

func TestWriteMultipleRegistersRoundTrip(t *testing.T) {
	values := []uint16{1, 2, 3, 0xFFFF}
	req := Request{FunctionCode: FuncWriteMultipleRegisters, Address: 0x30, Values: values}
	pdu, err := BuildPDU(req)
	if err != nil {
		t.Fatalf("BuildPDU: %v", err)
	}
	got, err := ParseRequestPDU(FunctionCode(pdu[0]), pdu[1:])
	if err != nil {
		t.Fatalf("ParseRequestPDU: %v", err)
	}
	if !reflect.DeepEqual(got.Values, values) {
		t.Errorf("got values %v, want %v", got.Values, values)
	}
}

func TestReadRegistersResponseRoundTrip(t *testing.T) {
	values := []uint16{0x1234, 0x5678}
	pdu := BuildReadRegistersResponsePDU(FuncReadHoldingRegisters, values)
	got, err := ParseReadRegistersResponsePDU(pdu[1:], uint16(len(values)))
	if err != nil {
		t.Fatalf("ParseReadRegistersResponsePDU: %v", err)
	}
	if !reflect.DeepEqual(got, values) {
		t.Errorf("got %v, want %v", got, values)
	}
}

func TestReadCoilsResponseRoundTrip(t *testing.T) {
	values := []bool{true, true, false, true, false, false, false, true, true}
	pdu := BuildReadCoilsResponsePDU(FuncReadCoils, values)
	got, err := ParseReadCoilsResponsePDU(pdu[1:], uint16(len(values)))
	if err != nil {
		t.Fatalf("ParseReadCoilsResponsePDU: %v", err)
	}
	if !reflect.DeepEqual(got, values) {
		t.Errorf("got %v, want %v", got, values)
	}
}

func TestBuildExceptionPDU(t *testing.T) {
	pdu := BuildExceptionPDU(FuncReadHoldingRegisters, ExceptionIllegalDataAddress)
	if len(pdu) != 2 {
		t.Fatalf("exception pdu length = %d, want 2", len(pdu))
	}
	if !IsException(pdu[0]) {
		t.Errorf("exception bit not set in 0x%02x", pdu[0])
	}
	if OriginalFunctionCode(pdu[0]) != byte(FuncReadHoldingRegisters) {
		t.Errorf("original function code = 0x%02x, want 0x%02x", OriginalFunctionCode(pdu[0]), byte(FuncReadHoldingRegisters))
	}
	if ExceptionCode(pdu[1]) != ExceptionIllegalDataAddress {
		t.Errorf("exception code = 0x%02x, want 0x%02x", pdu[1], byte(ExceptionIllegalDataAddress))
	}
}
