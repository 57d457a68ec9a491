package dispatcher

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/vienkmt/commscore/common"
	"github.com/vienkmt/commscore/eventbus"
)

func TestCoreTCPClientLifecycle(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer listener.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := listener.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	host, portStr, _ := net.SplitHostPort(listener.Addr().String())
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("Atoi: %v", err)
	}

	bus := eventbus.New()
	core := New(bus)

	cfg := common.TCPClientConfig{Host: host, Port: port, ConnectionID: "cli-1"}
	result := core.TCPClientConnect(context.Background(), cfg)
	if result.Err != nil {
		t.Fatalf("TCPClientConnect: %v", result.Err)
	}
	if core.TCPClientConnect(context.Background(), cfg).Err == nil {
		t.Error("second connect on same id should fail")
	}

	deadline := time.Now().Add(time.Second)
	for !core.IsTCPClientConnected("cli-1") {
		if time.Now().After(deadline) {
			t.Fatal("client never reported connected")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if got := core.TCPClientSend("cli-1", "48656c6c6f", true); got.Err != nil {
		t.Fatalf("TCPClientSend: %v", got.Err)
	}

	select {
	case conn := <-accepted:
		defer conn.Close()
		buf := make([]byte, 16)
		conn.SetReadDeadline(time.Now().Add(time.Second))
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if string(buf[:n]) != "Hello" {
			t.Errorf("received = %q, want %q", buf[:n], "Hello")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for accepted connection")
	}

	disc := core.TCPClientDisconnect(context.Background(), "cli-1")
	if disc.Err != nil {
		t.Fatalf("TCPClientDisconnect: %v", disc.Err)
	}
	if core.IsTCPClientConnected("cli-1") {
		t.Error("client still reported connected after disconnect")
	}
	if core.TCPClientDisconnect(context.Background(), "cli-1").Err == nil {
		t.Error("disconnecting an unknown id should fail")
	}
}
