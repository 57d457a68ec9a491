package serialengine

import (
	"testing"
	"time"

	"github.com/vienkmt/commscore/common"
	"github.com/vienkmt/commscore/logging"
)

func newTestPort(handle *fakeHandle) *Port {
	return &Port{
		config: common.SerialConfig{PortName: "/dev/fake0", BaudRate: 9600},
		logger: logging.NewNoopLogger(),
		handle: handle,
		done:   make(chan struct{}),
	}
}

func TestWriteHexTolerantParsesAndSendsBytes(t *testing.T) {
	handle := &fakeHandle{}
	p := newTestPort(handle)

	if err := p.Write("01 03 00", true, 0); err != nil {
		t.Fatalf("Write: %v", err)
	}
	want := []byte{0x01, 0x03, 0x00}
	if len(handle.written) != len(want) {
		t.Fatalf("written = %x, want %x", handle.written, want)
	}
	for i := range want {
		if handle.written[i] != want[i] {
			t.Errorf("written[%d] = %x, want %x", i, handle.written[i], want[i])
		}
	}
}

func TestWriteByteDelayedSendsOneAtATimeAndFlushesOnce(t *testing.T) {
	handle := &fakeHandle{}
	p := newTestPort(handle)

	start := time.Now()
	if err := p.Write("abc", false, time.Millisecond); err != nil {
		t.Fatalf("Write: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 2*time.Millisecond {
		t.Errorf("elapsed = %v, want at least 2ms for 2 inter-byte delays", elapsed)
	}
	if string(handle.written) != "abc" {
		t.Errorf("written = %q, want %q", handle.written, "abc")
	}
	if handle.flushes != 1 {
		t.Errorf("flushes = %d, want 1", handle.flushes)
	}
}

func TestWriteChunkedFlushesEachChunk(t *testing.T) {
	handle := &fakeHandle{}
	p := newTestPort(handle)

	payload := make([]byte, writeChunkSize+10)
	for i := range payload {
		payload[i] = byte(i)
	}
	if err := p.Write(string(payload), false, 0); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(handle.written) != len(payload) {
		t.Fatalf("written len = %d, want %d", len(handle.written), len(payload))
	}
	if handle.flushes != 2 {
		t.Errorf("flushes = %d, want 2 chunks flushed", handle.flushes)
	}
}

func TestWriteEmptyPayloadIsNoop(t *testing.T) {
	handle := &fakeHandle{}
	p := newTestPort(handle)

	if err := p.Write("", true, 0); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(handle.written) != 0 {
		t.Errorf("written = %x, want empty", handle.written)
	}
}
