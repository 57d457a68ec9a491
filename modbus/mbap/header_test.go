package mbap

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	h := Header{TransactionID: 0x0102, ProtocolID: 0, Length: 6, UnitID: 0x11}
	buf := Encode(h)
	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != h {
		t.Errorf("got %+v, want %+v", got, h)
	}
}

func TestDecodeRejectsNonZeroProtocolID(t *testing.T) {
	buf := Encode(Header{TransactionID: 1, ProtocolID: 7, Length: 6, UnitID: 1})
	if _, err := Decode(buf); err == nil {
		t.Fatal("expected error for non-zero protocol id")
	}
}

func TestEncodeSplitFrameRoundTrip(t *testing.T) {
	pdu := []byte{0x03, 0x00, 0x00, 0x00, 0x02}
	frame := EncodeFrame(42, 0x01, pdu)
	h, gotPDU, err := SplitFrame(frame)
	if err != nil {
		t.Fatalf("SplitFrame: %v", err)
	}
	if h.TransactionID != 42 || h.UnitID != 0x01 {
		t.Errorf("header mismatch: %+v", h)
	}
	if !bytes.Equal(gotPDU, pdu) {
		t.Errorf("pdu = % x, want % x", gotPDU, pdu)
	}
}

func TestSplitFrameRejectsShortBody(t *testing.T) {
	frame := Encode(Header{TransactionID: 1, Length: 10, UnitID: 1})
	if _, _, err := SplitFrame(frame); err == nil {
		t.Fatal("expected short-frame error")
	}
}
