package proto

import (
	"encoding/binary"
	"fmt"
)

// Request is a decoded Modbus request: everything needed to build either an
// RTU or a TCP frame, and everything the slave pipeline needs to act on it.
// Ref: spec.md §4.6 (Request construction).
type Request struct {
	UnitID       byte
	FunctionCode FunctionCode
	Address      uint16
	Quantity     uint16 // read count, or write count for multi-write
	Values       []uint16
	Coils        []bool
}

// BuildPDU encodes a Request's function-specific data (the Protocol Data
// Unit, i.e. everything after the unit/slave id and before the RTU
// checksum; on TCP the MBAP header precedes it). Ref: Section 6.
func BuildPDU(req Request) ([]byte, error) {
	switch req.FunctionCode {
	case FuncReadCoils, FuncReadDiscreteInputs, FuncReadHoldingRegisters, FuncReadInputRegisters:
		if req.Quantity < 1 || req.Quantity > MaxReadQuantity {
			return nil, fmt.Errorf("%w: %d", ErrInvalidQuantity, req.Quantity)
		}
		pdu := make([]byte, 5)
		pdu[0] = byte(req.FunctionCode)
		binary.BigEndian.PutUint16(pdu[1:3], req.Address)
		binary.BigEndian.PutUint16(pdu[3:5], req.Quantity)
		return pdu, nil

	case FuncWriteSingleCoil:
		pdu := make([]byte, 5)
		pdu[0] = byte(req.FunctionCode)
		binary.BigEndian.PutUint16(pdu[1:3], req.Address)
		value := CoilOffU16
		if len(req.Coils) > 0 && req.Coils[0] {
			value = CoilOnU16
		}
		binary.BigEndian.PutUint16(pdu[3:5], value)
		return pdu, nil

	case FuncWriteSingleRegister:
		if len(req.Values) != 1 {
			return nil, fmt.Errorf("%w: write single register needs exactly one value", ErrInvalidQuantity)
		}
		pdu := make([]byte, 5)
		pdu[0] = byte(req.FunctionCode)
		binary.BigEndian.PutUint16(pdu[1:3], req.Address)
		binary.BigEndian.PutUint16(pdu[3:5], req.Values[0])
		return pdu, nil

	case FuncWriteMultipleCoils:
		qty := len(req.Coils)
		if qty < 1 || qty > MaxWriteMultipleCoils {
			return nil, fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
		}
		packed := PackCoils(req.Coils)
		pdu := make([]byte, 6+len(packed))
		pdu[0] = byte(req.FunctionCode)
		binary.BigEndian.PutUint16(pdu[1:3], req.Address)
		binary.BigEndian.PutUint16(pdu[3:5], uint16(qty))
		pdu[5] = byte(len(packed))
		copy(pdu[6:], packed)
		return pdu, nil

	case FuncWriteMultipleRegisters:
		qty := len(req.Values)
		if qty < 1 || qty > MaxWriteMultipleRegisters {
			return nil, fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
		}
		pdu := make([]byte, 6+2*qty)
		pdu[0] = byte(req.FunctionCode)
		binary.BigEndian.PutUint16(pdu[1:3], req.Address)
		binary.BigEndian.PutUint16(pdu[3:5], uint16(qty))
		pdu[5] = byte(2 * qty)
		for i, v := range req.Values {
			binary.BigEndian.PutUint16(pdu[6+2*i:8+2*i], v)
		}
		return pdu, nil

	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrInvalidFunction, byte(req.FunctionCode))
	}
}

// ParseRequestPDU decodes a request PDU's function-specific data into a
// Request (unitID is filled in by the caller, who owns frame-level
// unwrapping). Used by the slave's request pipeline.
func ParseRequestPDU(fc FunctionCode, data []byte) (Request, error) {
	req := Request{FunctionCode: fc}
	switch fc {
	case FuncReadCoils, FuncReadDiscreteInputs, FuncReadHoldingRegisters, FuncReadInputRegisters:
		if len(data) < 4 {
			return req, ErrShortFrame
		}
		req.Address = binary.BigEndian.Uint16(data[0:2])
		req.Quantity = binary.BigEndian.Uint16(data[2:4])
		return req, nil

	case FuncWriteSingleCoil:
		if len(data) < 4 {
			return req, ErrShortFrame
		}
		req.Address = binary.BigEndian.Uint16(data[0:2])
		req.Coils = []bool{binary.BigEndian.Uint16(data[2:4]) == CoilOnU16}
		req.Quantity = 1
		return req, nil

	case FuncWriteSingleRegister:
		if len(data) < 4 {
			return req, ErrShortFrame
		}
		req.Address = binary.BigEndian.Uint16(data[0:2])
		req.Values = []uint16{binary.BigEndian.Uint16(data[2:4])}
		req.Quantity = 1
		return req, nil

	case FuncWriteMultipleCoils:
		if len(data) < 5 {
			return req, ErrShortFrame
		}
		req.Address = binary.BigEndian.Uint16(data[0:2])
		qty := binary.BigEndian.Uint16(data[2:4])
		byteCount := int(data[4])
		if len(data) < 5+byteCount {
			return req, ErrShortFrame
		}
		req.Quantity = qty
		req.Coils = UnpackCoils(data[5:5+byteCount], int(qty))
		return req, nil

	case FuncWriteMultipleRegisters:
		if len(data) < 5 {
			return req, ErrShortFrame
		}
		req.Address = binary.BigEndian.Uint16(data[0:2])
		qty := binary.BigEndian.Uint16(data[2:4])
		byteCount := int(data[4])
		if len(data) < 5+byteCount || byteCount != int(qty)*2 {
			return req, ErrShortFrame
		}
		req.Quantity = qty
		values := make([]uint16, qty)
		for i := range values {
			values[i] = binary.BigEndian.Uint16(data[5+2*i : 7+2*i])
		}
		req.Values = values
		return req, nil

	default:
		return req, fmt.Errorf("%w: 0x%02x", ErrInvalidFunction, byte(fc))
	}
}

// BuildReadRegistersResponsePDU encodes a read response's function-specific data for
// register-valued function codes (FC03/FC04), big-endian per Section 6.3/6.4.
func BuildReadRegistersResponsePDU(fc FunctionCode, values []uint16) []byte {
	pdu := make([]byte, 2+2*len(values))
	pdu[0] = byte(fc)
	pdu[1] = byte(2 * len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(pdu[2+2*i:4+2*i], v)
	}
	return pdu
}

// BuildReadCoilsResponsePDU encodes a read response's function-specific data
// for bit-valued function codes (FC01/FC02), LSB-first per Section 6.1/6.2.
func BuildReadCoilsResponsePDU(fc FunctionCode, values []bool) []byte {
	packed := PackCoils(values)
	pdu := make([]byte, 2+len(packed))
	pdu[0] = byte(fc)
	pdu[1] = byte(len(packed))
	copy(pdu[2:], packed)
	return pdu
}

// BuildEchoResponsePDU builds the response for FC05/FC06/FC0F/FC10: the
// slave echoes the address and quantity/value fields of the request.
// Ref: Section 6.5, 6.6, 6.11, 6.12.
func BuildEchoResponsePDU(fc FunctionCode, address uint16, quantityOrValue uint16) []byte {
	pdu := make([]byte, 5)
	pdu[0] = byte(fc)
	binary.BigEndian.PutUint16(pdu[1:3], address)
	binary.BigEndian.PutUint16(pdu[3:5], quantityOrValue)
	return pdu
}

// BuildExceptionPDU builds an exception response's function-specific data.
// Ref: Section 7.
func BuildExceptionPDU(fc FunctionCode, code ExceptionCode) []byte {
	return []byte{byte(fc) | ExceptionBit, byte(code)}
}

// ParseReadRegistersResponsePDU decodes FC03/FC04 response data.
func ParseReadRegistersResponsePDU(data []byte, quantity uint16) ([]uint16, error) {
	if len(data) < 1 {
		return nil, ErrShortFrame
	}
	byteCount := int(data[0])
	if len(data) < 1+byteCount || byteCount != int(quantity)*2 {
		return nil, ErrShortFrame
	}
	values := make([]uint16, quantity)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(data[1+2*i : 3+2*i])
	}
	return values, nil
}

// ParseReadCoilsResponsePDU decodes FC01/FC02 response data.
func ParseReadCoilsResponsePDU(data []byte, quantity uint16) ([]bool, error) {
	if len(data) < 1 {
		return nil, ErrShortFrame
	}
	byteCount := int(data[0])
	if len(data) < 1+byteCount {
		return nil, ErrShortFrame
	}
	return UnpackCoils(data[1:1+byteCount], int(quantity)), nil
}
