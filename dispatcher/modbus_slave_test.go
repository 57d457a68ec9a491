package dispatcher

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/vienkmt/commscore/common"
	"github.com/vienkmt/commscore/eventbus"
	"github.com/vienkmt/commscore/modbus/mbap"
	"github.com/vienkmt/commscore/modbus/proto"
)

func TestCoreModbusSlaveTCPLifecycle(t *testing.T) {
	bus := eventbus.New()
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()
	core := New(bus)

	cfg := common.ModbusSlaveConfig{ConnectionID: "slave-1", Transport: common.ModbusTransportTCP, BindAddress: "127.0.0.1", Port: 0}
	result := core.ModbusSlaveStart(context.Background(), cfg)
	if result.Err != nil {
		t.Fatalf("ModbusSlaveStart: %v", result.Err)
	}
	started := waitForEvent(t, events, common.TopicModbusStatus, time.Second)
	addr := started.Payload.(common.ModbusStatusPayload).Message

	if core.ModbusSlaveStart(context.Background(), cfg).Err == nil {
		t.Error("second start on same id should fail")
	}
	if !core.IsModbusSlaveRunning("slave-1") {
		t.Fatal("slave not reported running")
	}

	if got := core.ModbusSlaveWriteHoldingRegister("slave-1", 5, 0xCAFE); got.Err != nil {
		t.Fatalf("ModbusSlaveWriteHoldingRegister: %v", got.Err)
	}
	waitForEvent(t, events, common.TopicModbusSlaveDataChanged, time.Second)

	values, err := core.ModbusSlaveReadHoldingRegisters("slave-1", 5, 1)
	if err != nil {
		t.Fatalf("ModbusSlaveReadHoldingRegisters: %v", err)
	}
	if len(values) != 1 || values[0] != 0xCAFE {
		t.Errorf("values = %v, want [0xCAFE]", values)
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	reqPDU := []byte{byte(proto.FuncReadHoldingRegisters), 0, 5, 0, 1}
	if _, err := conn.Write(mbap.EncodeFrame(1, 0, reqPDU)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	header := make([]byte, mbap.HeaderLength)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := readFullConn(conn, header); err != nil {
		t.Fatalf("read header: %v", err)
	}
	h, err := mbap.Decode(header)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	body := make([]byte, h.Length-1)
	if _, err := readFullConn(conn, body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if got := binary.BigEndian.Uint16(body[2:4]); got != 0xCAFE {
		t.Errorf("register read back = 0x%04x, want 0xCAFE", got)
	}
	waitForEvent(t, events, common.TopicModbusSlaveRequest, time.Second)

	stats, err := core.ModbusSlaveGetStats("slave-1")
	if err != nil {
		t.Fatalf("ModbusSlaveGetStats: %v", err)
	}
	if stats.Total == 0 {
		t.Error("stats.Total = 0, want at least 1")
	}

	stop := core.ModbusSlaveStop(context.Background(), "slave-1")
	if stop.Err != nil {
		t.Fatalf("ModbusSlaveStop: %v", stop.Err)
	}
	if core.IsModbusSlaveRunning("slave-1") {
		t.Error("slave still reported running after stop")
	}
}

func readFullConn(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
