package tcpserver

import (
	"context"
	"net"
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

func startTestServer(t *testing.T, maxClients int, echo bool) (*Server, *eventbus.Bus, <-chan common.Event, func()) {
	t.Helper()
	bus := eventbus.New()
	events, unsubscribe := bus.Subscribe()
	cfg := common.TCPServerConfig{BindAddress: "127.0.0.1", Port: 0, ServerID: "srv-1", MaxClients: maxClients}
	srv, err := Start(context.Background(), cfg, bus, WithEcho(echo))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForEvent(t, events, common.TopicTCPServerStatus, time.Second)
	cleanup := func() {
		srv.Close(context.Background())
		unsubscribe()
	}
	return srv, bus, events, cleanup
}

func dial(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", srv.listener.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return conn
}

func TestServerAcceptsClientAndEmitsConnectedEvent(t *testing.T) {
	srv, _, events, cleanup := startTestServer(t, 5, false)
	defer cleanup()

	conn := dial(t, srv)
	defer conn.Close()

	ev := waitForEvent(t, events, common.TopicTCPServerClientEvent, time.Second)
	payload := ev.Payload.(common.TCPServerClientEventPayload)
	if payload.EventType != common.ClientEventConnected {
		t.Errorf("event type = %q, want connected", payload.EventType)
	}
	if payload.ClientID != "client-1" {
		t.Errorf("client id = %q, want client-1", payload.ClientID)
	}
}

func TestServerDropsConnectionsOverMaxClients(t *testing.T) {
	srv, _, events, cleanup := startTestServer(t, 1, false)
	defer cleanup()

	conn1 := dial(t, srv)
	defer conn1.Close()
	waitForEvent(t, events, common.TopicTCPServerClientEvent, time.Second)

	conn2 := dial(t, srv)
	defer conn2.Close()

	conn2.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1)
	_, err := conn2.Read(buf)
	if err == nil {
		t.Fatal("expected the second connection to be dropped, but it stayed open")
	}
}

func TestServerEchoModeWritesBackToSender(t *testing.T) {
	srv, _, events, cleanup := startTestServer(t, 5, true)
	defer cleanup()

	conn := dial(t, srv)
	defer conn.Close()
	waitForEvent(t, events, common.TopicTCPServerClientEvent, time.Second)

	if _, err := conn.Write([]byte("hi")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 32)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "Echo: hi" {
		t.Errorf("echoed = %q, want %q", buf[:n], "Echo: hi")
	}
}

func TestServerBroadcastReachesAllClients(t *testing.T) {
	srv, _, events, cleanup := startTestServer(t, 5, false)
	defer cleanup()

	conn1 := dial(t, srv)
	defer conn1.Close()
	waitForEvent(t, events, common.TopicTCPServerClientEvent, time.Second)
	conn2 := dial(t, srv)
	defer conn2.Close()
	waitForEvent(t, events, common.TopicTCPServerClientEvent, time.Second)

	if err := srv.Send("", []byte("broadcast")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	for _, conn := range []net.Conn{conn1, conn2} {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		buf := make([]byte, 32)
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if string(buf[:n]) != "broadcast" {
			t.Errorf("got %q, want broadcast", buf[:n])
		}
	}
}

func TestServerSendToUnknownClientFails(t *testing.T) {
	srv, _, _, cleanup := startTestServer(t, 5, false)
	defer cleanup()

	if err := srv.Send("client-99", []byte("x")); err != ErrClientNotFound {
		t.Errorf("err = %v, want ErrClientNotFound", err)
	}
}

func TestDisconnectClientRemovesFromSetAndEmitsEvent(t *testing.T) {
	srv, _, events, cleanup := startTestServer(t, 5, false)
	defer cleanup()

	conn := dial(t, srv)
	defer conn.Close()
	waitForEvent(t, events, common.TopicTCPServerClientEvent, time.Second)

	if err := srv.DisconnectClient("client-1"); err != nil {
		t.Fatalf("DisconnectClient: %v", err)
	}

	ev := waitForEvent(t, events, common.TopicTCPServerClientEvent, time.Second)
	payload := ev.Payload.(common.TCPServerClientEventPayload)
	if payload.EventType != common.ClientEventDisconnected {
		t.Errorf("event type = %q, want disconnected", payload.EventType)
	}

	if len(srv.Clients()) != 0 {
		t.Errorf("expected client set to be empty after disconnect")
	}
}
