package slave

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/vienkmt/commscore/modbus/proto"
	"github.com/vienkmt/commscore/modbus/rtu"
)

type fakeRTUHandle struct {
	mu      sync.Mutex
	chunks  [][]byte
	closed  bool
	written []byte
}

type rtuTimeoutErr struct{}

func (rtuTimeoutErr) Error() string { return "i/o timeout" }
func (rtuTimeoutErr) Timeout() bool { return true }

func (f *fakeRTUHandle) pushChunk(b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, b)
}

func (f *fakeRTUHandle) Read(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, io.EOF
	}
	if len(f.chunks) == 0 {
		return 0, rtuTimeoutErr{}
	}
	chunk := f.chunks[0]
	f.chunks = f.chunks[1:]
	n := copy(buf, chunk)
	return n, nil
}

func (f *fakeRTUHandle) Write(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, b...)
	return len(b), nil
}

func (f *fakeRTUHandle) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeRTUHandle) takeWritten() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.written
	f.written = nil
	return out
}

func TestRTUListenerRespondsToAddressedRequest(t *testing.T) {
	store := NewStore()
	store.WriteHoldingRegister(0, 0xBEEF)
	handler := NewHandler(store)

	handle := &fakeRTUHandle{}
	l := newRTUListener(context.Background(), "rtu-1", 0x11, handler, nil, handle, 9600)
	defer l.Close(context.Background())

	reqPDU := []byte{byte(proto.FuncReadHoldingRegisters), 0, 0, 0, 1}
	frame, err := rtu.Pack(0x11, reqPDU)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	handle.pushChunk(frame)

	var response []byte
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := handle.takeWritten(); len(got) > 0 {
			response = got
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if response == nil {
		t.Fatal("timed out waiting for a response frame")
	}

	slaveID, pdu, err := rtu.Unpack(response)
	if err != nil {
		t.Fatalf("Unpack response: %v", err)
	}
	if slaveID != 0x11 {
		t.Errorf("slaveID = 0x%02x, want 0x11", slaveID)
	}
	if pdu[0] != byte(proto.FuncReadHoldingRegisters) {
		t.Fatalf("function code = 0x%02x, want 0x%02x", pdu[0], proto.FuncReadHoldingRegisters)
	}
}

func TestRTUListenerIgnoresFrameForOtherUnit(t *testing.T) {
	store := NewStore()
	handler := NewHandler(store)
	handle := &fakeRTUHandle{}
	l := newRTUListener(context.Background(), "rtu-1", 0x11, handler, nil, handle, 9600)
	defer l.Close(context.Background())

	reqPDU := []byte{byte(proto.FuncReadHoldingRegisters), 0, 0, 0, 1}
	frame, _ := rtu.Pack(0x22, reqPDU)
	handle.pushChunk(frame)

	time.Sleep(100 * time.Millisecond)
	if got := handle.takeWritten(); len(got) != 0 {
		t.Errorf("expected no response for a frame addressed to another unit, got % x", got)
	}
}

func TestRTUListenerDropsFramesWithBadCRC(t *testing.T) {
	store := NewStore()
	handler := NewHandler(store)
	handle := &fakeRTUHandle{}
	l := newRTUListener(context.Background(), "rtu-1", 0x11, handler, nil, handle, 9600)
	defer l.Close(context.Background())

	handle.pushChunk([]byte{0x11, 0x03, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00})

	time.Sleep(100 * time.Millisecond)
	if got := handle.takeWritten(); len(got) != 0 {
		t.Errorf("expected no response for a bad-CRC frame, got % x", got)
	}
}
