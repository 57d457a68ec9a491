package serialengine

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/vienkmt/commscore/common"
	"github.com/vienkmt/commscore/eventbus"
	"github.com/vienkmt/commscore/logging"
)

// drivingHandle feeds readLoop a scripted sequence of reads: either a data
// chunk or a timeout, paced by the caller so gap timing is deterministic.
type drivingHandle struct {
	reads chan func() (int, error)
}

func (d *drivingHandle) Read(buf []byte) (int, error) {
	step := <-d.reads
	return step()
}
func (d *drivingHandle) Write(b []byte) (int, error) { return len(b), nil }
func (d *drivingHandle) Flush() error                { return nil }
func (d *drivingHandle) Close() error                { return nil }

func dataStep(data []byte) func() (int, error) {
	return func() (int, error) { return len(data), nil }
}

func timeoutStep() func() (int, error) {
	return func() (int, error) { return 0, timeoutErr{} }
}

// TestReaderBatchesBurstsWithinGapFlushesAcrossGap exercises the edge case
// from spec.md §8: two 10-byte bursts separated by less than the gap
// threshold coalesce into one 20-byte event, flushed once the gap elapses.
func TestReaderBatchesBurstsWithinGapFlushesAcrossGap(t *testing.T) {
	handle := &drivingHandle{reads: make(chan func() (int, error), 16)}
	bus := eventbus.New()
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	p := &Port{
		config: common.SerialConfig{PortName: "/dev/fake0", BaudRate: 9600},
		logger: logging.NewNoopLogger(),
		handle: handle,
		bus:    bus,
		done:   make(chan struct{}),
	}
	p.running.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.readLoop(ctx)

	burstA := make([]byte, 10)
	burstB := make([]byte, 10)
	for i := range burstA {
		burstA[i] = byte(i)
		burstB[i] = byte(i + 100)
	}

	// Two bursts arrive back to back, with no real idle time between them:
	// readLoop keeps accumulating until a timeout read finds the gap
	// threshold (clamped to 50ms at 9600 baud) has actually elapsed.
	handle.reads <- dataStep(burstA)
	handle.reads <- dataStep(burstB)
	go func() {
		for {
			select {
			case handle.reads <- timeoutStep():
			case <-ctx.Done():
				return
			}
		}
	}()

	var got common.SerialDataPayload
	select {
	case ev := <-events:
		got = ev.Payload.(common.SerialDataPayload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for coalesced serial-data event")
	}
	if len(got.Data) != 20 {
		t.Fatalf("coalesced event has %d bytes, want 20", len(got.Data))
	}

	p.running.Store(false)
	cancel()
	handle.reads <- func() (int, error) { return 0, io.EOF }
	<-p.done
}

func TestReaderEmitsDisconnectOnEOF(t *testing.T) {
	handle := &fakeHandle{}
	bus := eventbus.New()
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	p := &Port{
		config: common.SerialConfig{PortName: "/dev/fake0", BaudRate: 9600},
		logger: logging.NewNoopLogger(),
		handle: handle,
		bus:    bus,
		done:   make(chan struct{}),
	}
	p.running.Store(true)
	handle.closed = true // Read returns io.EOF immediately

	go p.readLoop(context.Background())

	sawData, sawDisconnect := false, false
	deadline := time.After(time.Second)
	for !sawDisconnect {
		select {
		case ev := <-events:
			switch ev.Topic {
			case common.TopicSerialData:
				sawData = true
			case common.TopicSerialDisconnected:
				sawDisconnect = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for disconnect event")
		}
	}
	if !sawData {
		t.Error("expected an empty-payload serial-data sentinel before the disconnect event")
	}
}
