package master

import "github.com/vienkmt/commscore/modbus/proto"

// ReadRequest builds a read request (FC01-04) after validating quantity
// limits.
func ReadRequest(unitID byte, fc proto.FunctionCode, address, quantity uint16) (proto.Request, error) {
	req := proto.Request{UnitID: unitID, FunctionCode: fc, Address: address, Quantity: quantity}
	if _, err := proto.BuildPDU(req); err != nil {
		return proto.Request{}, err
	}
	return req, nil
}

// WriteSingleCoilRequest builds an FC05 request.
func WriteSingleCoilRequest(unitID byte, address uint16, value bool) proto.Request {
	return proto.Request{UnitID: unitID, FunctionCode: proto.FuncWriteSingleCoil, Address: address, Coils: []bool{value}}
}

// WriteSingleRegisterRequest builds an FC06 request.
func WriteSingleRegisterRequest(unitID byte, address, value uint16) proto.Request {
	return proto.Request{UnitID: unitID, FunctionCode: proto.FuncWriteSingleRegister, Address: address, Values: []uint16{value}}
}

// WriteMultipleCoilsRequest builds an FC15 request after validating quantity.
func WriteMultipleCoilsRequest(unitID byte, address uint16, values []bool) (proto.Request, error) {
	req := proto.Request{UnitID: unitID, FunctionCode: proto.FuncWriteMultipleCoils, Address: address, Coils: values}
	if _, err := proto.BuildPDU(req); err != nil {
		return proto.Request{}, err
	}
	return req, nil
}

// WriteMultipleRegistersRequest builds an FC16 request after validating quantity.
func WriteMultipleRegistersRequest(unitID byte, address uint16, values []uint16) (proto.Request, error) {
	req := proto.Request{UnitID: unitID, FunctionCode: proto.FuncWriteMultipleRegisters, Address: address, Values: values}
	if _, err := proto.BuildPDU(req); err != nil {
		return proto.Request{}, err
	}
	return req, nil
}
