package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/vienkmt/commscore/common"
	"github.com/vienkmt/commscore/eventbus"
)

func waitForEvent(t *testing.T, events <-chan common.Event, topic common.Topic, timeout time.Duration) common.Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-events:
			if ev.Topic == topic {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for topic %v", topic)
		}
	}
}

func TestNewCoreHasEmptyRegistries(t *testing.T) {
	core := New(eventbus.New())
	if core.IsPortOpen("COM1") {
		t.Error("fresh core reports a port open")
	}
	if core.IsTCPClientConnected("c1") {
		t.Error("fresh core reports a tcp client connected")
	}
	if core.IsTCPServerRunning("s1") {
		t.Error("fresh core reports a tcp server running")
	}
}

func TestCoreCloseIsSafeOnEmptyCore(t *testing.T) {
	core := New(eventbus.New())
	core.Close(context.Background())
	core.Close(context.Background())
}
