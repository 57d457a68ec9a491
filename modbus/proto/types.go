// Package proto holds the Modbus wire vocabulary shared by modbus/master,
// modbus/slave, modbus/rtu and modbus/mbap: function codes, exception
// codes, the four data-model address spaces, and per-function limits.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf.
package proto

import "fmt"

// FunctionCode identifies a Modbus operation. Ref: Section 6.
type FunctionCode byte

const (
	FuncReadCoils              FunctionCode = 0x01 // Ref: Section 6.1
	FuncReadDiscreteInputs     FunctionCode = 0x02 // Ref: Section 6.2
	FuncReadHoldingRegisters   FunctionCode = 0x03 // Ref: Section 6.3
	FuncReadInputRegisters     FunctionCode = 0x04 // Ref: Section 6.4
	FuncWriteSingleCoil        FunctionCode = 0x05 // Ref: Section 6.5
	FuncWriteSingleRegister    FunctionCode = 0x06 // Ref: Section 6.6
	FuncWriteMultipleCoils     FunctionCode = 0x0F // Ref: Section 6.11
	FuncWriteMultipleRegisters FunctionCode = 0x10 // Ref: Section 6.12
)

// ExceptionCode is the single byte following an exception function code.
// Ref: Section 7.
type ExceptionCode byte

const (
	ExceptionIllegalFunction         ExceptionCode = 0x01
	ExceptionIllegalDataAddress      ExceptionCode = 0x02
	ExceptionIllegalDataValue        ExceptionCode = 0x03
	ExceptionSlaveDeviceFailure      ExceptionCode = 0x04
	ExceptionAcknowledge             ExceptionCode = 0x05
	ExceptionSlaveDeviceBusy         ExceptionCode = 0x06
	ExceptionMemoryParityError       ExceptionCode = 0x08
	ExceptionGatewayPathUnavailable  ExceptionCode = 0x0A
	ExceptionGatewayTargetNoResponse ExceptionCode = 0x0B
)

// ExceptionBit is set in the function code byte of an exception response.
const ExceptionBit byte = 0x80

// IsException reports whether fc carries the exception bit.
func IsException(fc byte) bool { return fc&ExceptionBit != 0 }

// OriginalFunctionCode strips the exception bit.
func OriginalFunctionCode(fc byte) byte { return fc &^ ExceptionBit }

// String returns a human-readable description of an exception code.
// Ref: Section 7.
func (e ExceptionCode) String() string {
	switch e {
	case ExceptionIllegalFunction:
		return "Illegal Function"
	case ExceptionIllegalDataAddress:
		return "Illegal Data Address"
	case ExceptionIllegalDataValue:
		return "Illegal Data Value"
	case ExceptionSlaveDeviceFailure:
		return "Slave Device Failure"
	case ExceptionAcknowledge:
		return "Acknowledge"
	case ExceptionSlaveDeviceBusy:
		return "Slave Device Busy"
	case ExceptionMemoryParityError:
		return "Memory Parity Error"
	case ExceptionGatewayPathUnavailable:
		return "Gateway Path Unavailable"
	case ExceptionGatewayTargetNoResponse:
		return "Gateway Target Device Failed to Respond"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", byte(e))
	}
}

func (f FunctionCode) String() string {
	switch f {
	case FuncReadCoils:
		return "ReadCoils"
	case FuncReadDiscreteInputs:
		return "ReadDiscreteInputs"
	case FuncReadHoldingRegisters:
		return "ReadHoldingRegisters"
	case FuncReadInputRegisters:
		return "ReadInputRegisters"
	case FuncWriteSingleCoil:
		return "WriteSingleCoil"
	case FuncWriteSingleRegister:
		return "WriteSingleRegister"
	case FuncWriteMultipleCoils:
		return "WriteMultipleCoils"
	case FuncWriteMultipleRegisters:
		return "WriteMultipleRegisters"
	default:
		if IsException(byte(f)) {
			return fmt.Sprintf("Exception(%s)", FunctionCode(OriginalFunctionCode(byte(f))))
		}
		return fmt.Sprintf("Unknown(0x%02x)", byte(f))
	}
}

// DataType names one of the four Modbus logical address spaces.
// Ref: spec.md §3 (Modbus data model).
type DataType int

const (
	DataTypeCoil DataType = iota
	DataTypeDiscreteInput
	DataTypeHoldingRegister
	DataTypeInputRegister
)

func (d DataType) String() string {
	switch d {
	case DataTypeCoil:
		return "coil"
	case DataTypeDiscreteInput:
		return "discrete_input"
	case DataTypeHoldingRegister:
		return "holding_register"
	case DataTypeInputRegister:
		return "input_register"
	default:
		return "unknown"
	}
}

// DataTypeForFunction maps a function code to the address space it touches.
func DataTypeForFunction(fc FunctionCode) (DataType, bool) {
	switch fc {
	case FuncReadCoils, FuncWriteSingleCoil, FuncWriteMultipleCoils:
		return DataTypeCoil, true
	case FuncReadDiscreteInputs:
		return DataTypeDiscreteInput, true
	case FuncReadHoldingRegisters, FuncWriteSingleRegister, FuncWriteMultipleRegisters:
		return DataTypeHoldingRegister, true
	case FuncReadInputRegisters:
		return DataTypeInputRegister, true
	default:
		return 0, false
	}
}

// Per-function-code limits. Ref: spec.md §4.6.
const (
	MaxReadQuantity           = 125
	MaxWriteMultipleCoils     = 1968
	MaxWriteMultipleRegisters = 123

	CoilOnU16  uint16 = 0xFF00
	CoilOffU16 uint16 = 0x0000
)
