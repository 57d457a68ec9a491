package rtu

import (
	"bytes"
	"testing"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	pdu := []byte{0x03, 0x00, 0x00, 0x00, 0x02}
	frame, err := Pack(0x11, pdu)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	slaveID, gotPDU, err := Unpack(frame)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if slaveID != 0x11 {
		t.Errorf("slaveID = 0x%02x, want 0x11", slaveID)
	}
	if !bytes.Equal(gotPDU, pdu) {
		t.Errorf("pdu = % x, want % x", gotPDU, pdu)
	}
}

func TestKnownCRCVector(t *testing.T) {
	// Classic Modbus example: slave 0x11, FC 0x03, addr 0x006B, qty 0x0003
	// -> CRC bytes 0x76 0x87 (little-endian on the wire).
	data := []byte{0x11, 0x03, 0x00, 0x6B, 0x00, 0x03}
	crc := CalculateCRC(data)
	if byte(crc) != 0x76 || byte(crc>>8) != 0x87 {
		t.Errorf("CRC = %04x, want low=76 high=87", crc)
	}
}

func TestUnpackRejectsBadCRC(t *testing.T) {
	frame := []byte{0x11, 0x03, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00}
	if _, _, err := Unpack(frame); err == nil {
		t.Fatal("expected CRC error")
	}
}

func TestUnpackRejectsShortFrame(t *testing.T) {
	if _, _, err := Unpack([]byte{0x01, 0x02}); err == nil {
		t.Fatal("expected short-frame error")
	}
}

func TestInterFrameDelayFloor(t *testing.T) {
	// At very high baud rates the 1750µs floor dominates.
	if got := InterFrameDelay(115200); got != 1750000 {
		t.Errorf("InterFrameDelay(115200) = %v, want 1750µs", got)
	}
}

func TestInterFrameDelayAt9600(t *testing.T) {
	got := InterFrameDelay(9600)
	want := 4010 // microseconds, approx (11/9600)*3.5*1e6
	gotUs := got.Microseconds()
	if gotUs < int64(want)-50 || gotUs > int64(want)+50 {
		t.Errorf("InterFrameDelay(9600) = %v, want ~%dµs", got, want)
	}
}
