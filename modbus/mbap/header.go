// Package mbap implements the Modbus TCP ("MBAP") Application Protocol
// header: a 7-byte preamble carrying a transaction id, protocol id, length,
// and unit id, preceding the PDU on every TCP frame.
// Grounded on the header parsing in gomodbus's TCP transport readLoop and
// its TCP server's connection handler.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 4.1.
package mbap

import (
	"encoding/binary"

	"github.com/vienkmt/commscore/modbus/proto"
)

// HeaderLength is the fixed size of the MBAP header in bytes.
const HeaderLength = 7

// ProtocolIdentifier is always 0 for Modbus TCP.
const ProtocolIdentifier uint16 = 0

// Header is a decoded MBAP header.
type Header struct {
	TransactionID uint16
	ProtocolID    uint16
	Length        uint16 // byte count of unit id + PDU that follows
	UnitID        byte
}

// Encode writes h as a 7-byte MBAP header.
func Encode(h Header) []byte {
	buf := make([]byte, HeaderLength)
	binary.BigEndian.PutUint16(buf[0:2], h.TransactionID)
	binary.BigEndian.PutUint16(buf[2:4], h.ProtocolID)
	binary.BigEndian.PutUint16(buf[4:6], h.Length)
	buf[6] = h.UnitID
	return buf
}

// Decode parses a 7-byte MBAP header, rejecting anything with a non-zero
// protocol id since that identifies a non-Modbus payload sharing the port.
func Decode(buf []byte) (Header, error) {
	if len(buf) < HeaderLength {
		return Header{}, proto.ErrShortFrame
	}
	h := Header{
		TransactionID: binary.BigEndian.Uint16(buf[0:2]),
		ProtocolID:    binary.BigEndian.Uint16(buf[2:4]),
		Length:        binary.BigEndian.Uint16(buf[4:6]),
		UnitID:        buf[6],
	}
	if h.ProtocolID != ProtocolIdentifier {
		return h, proto.ErrInvalidMBAP
	}
	return h, nil
}

// EncodeFrame builds a full MBAP frame: header followed by the PDU. Length
// is computed as len(pdu)+1 (the unit id byte counted in Length but not in
// the header itself).
func EncodeFrame(transactionID uint16, unitID byte, pdu []byte) []byte {
	header := Encode(Header{
		TransactionID: transactionID,
		ProtocolID:    ProtocolIdentifier,
		Length:        uint16(len(pdu) + 1),
		UnitID:        unitID,
	})
	frame := make([]byte, len(header)+len(pdu))
	copy(frame, header)
	copy(frame[len(header):], pdu)
	return frame
}

// SplitFrame decodes the MBAP header and returns the PDU slice following it,
// validating that the body the header announces is actually present.
func SplitFrame(frame []byte) (Header, []byte, error) {
	h, err := Decode(frame)
	if err != nil {
		return h, nil, err
	}
	bodyLen := int(h.Length) - 1 // exclude unit id already counted
	if bodyLen < 0 || len(frame) < HeaderLength+bodyLen {
		return h, nil, proto.ErrShortFrame
	}
	return h, frame[HeaderLength : HeaderLength+bodyLen], nil
}
