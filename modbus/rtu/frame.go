package rtu

import (
	"fmt"

	"github.com/vienkmt/commscore/modbus/proto"
)

// MinFrameLength is the shortest legal RTU frame: slave id, function code,
// and a 2-byte CRC.
const MinFrameLength = 4

// MaxFrameLength bounds RTU frames at 256 bytes (slave id + 253-byte PDU + CRC).
const MaxFrameLength = 256

// Pack wraps a PDU as slaveID|pdu|crc, CRC transmitted little-endian.
func Pack(slaveID byte, pdu []byte) ([]byte, error) {
	if len(pdu) == 0 {
		return nil, fmt.Errorf("rtu: empty PDU")
	}
	if 1+len(pdu)+2 > MaxFrameLength {
		return nil, fmt.Errorf("rtu: PDU too long: %d bytes", len(pdu))
	}
	frame := make([]byte, 1+len(pdu)+2)
	frame[0] = slaveID
	copy(frame[1:], pdu)
	crc := CalculateCRC(frame[:len(frame)-2])
	frame[len(frame)-2] = byte(crc)
	frame[len(frame)-1] = byte(crc >> 8)
	return frame, nil
}

// Unpack validates the trailing CRC and splits frame into slave id and PDU.
func Unpack(frame []byte) (slaveID byte, pdu []byte, err error) {
	if len(frame) < MinFrameLength {
		return 0, nil, proto.ErrShortFrame
	}
	if !VerifyCRC(frame) {
		return 0, nil, proto.ErrInvalidCRC
	}
	return frame[0], frame[1 : len(frame)-2], nil
}

// VerifyCRC reports whether frame's trailing two bytes match the CRC of
// everything before them.
func VerifyCRC(frame []byte) bool {
	if len(frame) < MinFrameLength {
		return false
	}
	dataLen := len(frame) - 2
	want := CalculateCRC(frame[:dataLen])
	got := uint16(frame[dataLen]) | uint16(frame[dataLen+1])<<8
	return want == got
}
