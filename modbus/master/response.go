package master

import "github.com/vienkmt/commscore/modbus/proto"

// ParseResponsePDU decodes a response PDU for the function code and
// quantity of the originating request, or returns a *proto.Error if the
// slave replied with an exception.
func ParseResponsePDU(req proto.Request, pdu []byte) (values []uint16, coils []bool, err error) {
	if len(pdu) < 1 {
		return nil, nil, proto.ErrShortFrame
	}
	fc := pdu[0]
	if proto.IsException(fc) {
		if proto.OriginalFunctionCode(fc) != byte(req.FunctionCode) {
			return nil, nil, proto.ErrInvalidFunction
		}
		if len(pdu) < 2 {
			return nil, nil, proto.ErrShortFrame
		}
		return nil, nil, &proto.Error{FunctionCode: req.FunctionCode, ExceptionCode: proto.ExceptionCode(pdu[1])}
	}
	if fc != byte(req.FunctionCode) {
		return nil, nil, proto.ErrInvalidFunction
	}

	switch req.FunctionCode {
	case proto.FuncReadCoils, proto.FuncReadDiscreteInputs:
		coils, err = proto.ParseReadCoilsResponsePDU(pdu[1:], req.Quantity)
		return nil, coils, err
	case proto.FuncReadHoldingRegisters, proto.FuncReadInputRegisters:
		values, err = proto.ParseReadRegistersResponsePDU(pdu[1:], req.Quantity)
		return values, nil, err
	case proto.FuncWriteSingleCoil, proto.FuncWriteSingleRegister,
		proto.FuncWriteMultipleCoils, proto.FuncWriteMultipleRegisters:
		// Echo responses carry no payload beyond address/value, already
		// known to the caller from the request it sent.
		return nil, nil, nil
	default:
		return nil, nil, proto.ErrInvalidFunction
	}
}
