package dispatcher

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/vienkmt/commscore/common"
	"github.com/vienkmt/commscore/eventbus"
)

func TestCoreTCPServerLifecycle(t *testing.T) {
	bus := eventbus.New()
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()
	core := New(bus)

	cfg := common.TCPServerConfig{BindAddress: "127.0.0.1", Port: 0, ServerID: "srv-1", MaxClients: 4}
	result := core.TCPServerStart(context.Background(), cfg, true)
	if result.Err != nil {
		t.Fatalf("TCPServerStart: %v", result.Err)
	}
	started := waitForEvent(t, events, common.TopicTCPServerStatus, time.Second)
	addr := started.Payload.(common.TCPServerStatusPayload).Message

	if !core.IsTCPServerRunning("srv-1") {
		t.Fatal("server not reported running")
	}
	if core.TCPServerStart(context.Background(), cfg, false).Err == nil {
		t.Error("second start on same id should fail")
	}
	if got := core.TCPServerSetEcho("missing", true); got.Err == nil {
		t.Error("set echo on missing server should fail")
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	waitForEvent(t, events, common.TopicTCPServerClientEvent, time.Second)

	if _, err := conn.Write([]byte("hi")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	buf := make([]byte, 64)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got := string(buf[:n]); got != "Echo: hi" {
		t.Errorf("echoed = %q, want %q", got, "Echo: hi")
	}

	clients, err := core.TCPServerClients("srv-1")
	if err != nil {
		t.Fatalf("TCPServerClients: %v", err)
	}
	if len(clients) != 1 {
		t.Fatalf("clients = %d, want 1", len(clients))
	}

	if got := core.TCPServerSend("srv-1", clients[0].ClientID, "direct", false); got.Err != nil {
		t.Fatalf("TCPServerSend: %v", got.Err)
	}

	if got := core.TCPServerDisconnectClient("srv-1", clients[0].ClientID); got.Err != nil {
		t.Fatalf("TCPServerDisconnectClient: %v", got.Err)
	}

	stop := core.TCPServerStop(context.Background(), "srv-1")
	if stop.Err != nil {
		t.Fatalf("TCPServerStop: %v", stop.Err)
	}
	if core.IsTCPServerRunning("srv-1") {
		t.Error("server still reported running after stop")
	}
	if core.TCPServerStop(context.Background(), "srv-1").Err == nil {
		t.Error("stopping an already-stopped server should fail")
	}
}
