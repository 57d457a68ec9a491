package common

import "time"

// Topic names the one-way event stream from Core to shell.
// Ref: spec.md §4.1.
type Topic string

const (
	TopicSerialData         Topic = "serial-data"
	TopicSerialDisconnected Topic = "serial-disconnected"

	TopicTCPData              Topic = "tcp-data"
	TopicTCPClientStatus      Topic = "tcp-client-status"
	TopicTCPServerStatus      Topic = "tcp-server-status"
	TopicTCPServerClientEvent Topic = "tcp-server-client-event"

	TopicMQTTStatus Topic = "mqtt-status"
	TopicMQTTData   Topic = "mqtt-data"

	TopicModbusSlaveRequest        Topic = "modbus-slave-request"
	TopicModbusSlaveDataChanged    Topic = "modbus-slave-data-changed"
	TopicModbusSlaveTCPClientEvent Topic = "modbus-slave-tcp-client-event"
	TopicModbusStatus              Topic = "modbus-status"
)

// Event is the single envelope type published on the Bus.
type Event struct {
	Topic     Topic
	Payload   interface{}
	Timestamp int64 // milliseconds since the Unix epoch
}

// NowMillis returns the current time as milliseconds since the Unix epoch,
// the timestamp unit used by every event payload (spec.md §4.1).
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// TCP client status values. Ref: spec.md §4.1.
const (
	TCPClientStatusConnecting   = "connecting"
	TCPClientStatusConnected    = "connected"
	TCPClientStatusReconnecting = "reconnecting"
	TCPClientStatusRetrying     = "retrying"
	TCPClientStatusWriteFailed  = "write_failed"
	TCPClientStatusDisconnected = "disconnected"
	TCPClientStatusError        = "error"
)

// TCP server status values.
const (
	TCPServerStatusStarted = "started"
	TCPServerStatusStopped = "stopped"
	TCPServerStatusError   = "error"
)

// TCP server client event types.
const (
	ClientEventConnected    = "connected"
	ClientEventDisconnected = "disconnected"
)

// MQTT status values.
const (
	MQTTStatusConnecting   = "connecting"
	MQTTStatusConnected    = "connected"
	MQTTStatusDisconnected = "disconnected"
	MQTTStatusError        = "error"
)

// MQTT message direction.
const (
	DirectionRX = "rx"
	DirectionTX = "tx"
)

// SerialDataPayload is the payload for TopicSerialData. An empty Data slice
// is the disconnect sentinel described in spec.md §4.2.
type SerialDataPayload struct {
	PortName  string
	Data      []byte
	Timestamp int64
}

// SerialDisconnectedPayload is the payload for TopicSerialDisconnected.
type SerialDisconnectedPayload struct {
	PortName  string
	Reason    string
	Timestamp int64
}

// TCPDataPayload is the payload for TopicTCPData, shared by client and
// server engines (ClientID is empty for the TCP client engine).
type TCPDataPayload struct {
	ConnectionID ConnectionID
	ClientID     string
	Data         []byte
	Timestamp    int64
}

// TCPClientStatusPayload is the payload for TopicTCPClientStatus.
type TCPClientStatusPayload struct {
	ConnectionID ConnectionID
	Status       string
	Message      string
	Timestamp    int64
}

// TCPServerStatusPayload is the payload for TopicTCPServerStatus.
type TCPServerStatusPayload struct {
	ServerID  ConnectionID
	Status    string
	Message   string
	Timestamp int64
}

// TCPServerClientEventPayload is the payload for TopicTCPServerClientEvent.
type TCPServerClientEventPayload struct {
	ServerID   ConnectionID
	ClientID   string
	RemoteAddr string
	EventType  string
	Timestamp  int64
}

// MQTTStatusPayload is the payload for TopicMQTTStatus.
type MQTTStatusPayload struct {
	ConnectionID ConnectionID
	Status       string
	Message      string
	Timestamp    int64
}

// MQTTDataPayload is the payload for TopicMQTTData.
type MQTTDataPayload struct {
	ConnectionID ConnectionID
	Topic        string
	Payload      []byte
	QoS          byte
	Retain       bool
	Timestamp    int64
	Direction    string
}

// Modbus status values, emitted on TopicModbusStatus for both master and
// slave endpoints.
const (
	ModbusStatusStarted = "started"
	ModbusStatusStopped = "stopped"
	ModbusStatusError   = "error"
)

// ModbusStatusPayload is the payload for TopicModbusStatus.
type ModbusStatusPayload struct {
	ConnectionID ConnectionID
	Status       string
	Message      string
	Timestamp    int64
}

// ModbusSlaveRequestPayload is the payload for TopicModbusSlaveRequest,
// emitted for every request a slave instance processes (successful or
// exception). Ref: spec.md §4.7 request processing pipeline, step 8.
type ModbusSlaveRequestPayload struct {
	ConnectionID ConnectionID
	UnitID       byte
	FunctionCode byte
	Address      uint16
	Quantity     uint16
	Exception    bool
	Timestamp    int64
}

// ModbusSlaveDataChangedPayload is the payload for
// TopicModbusSlaveDataChanged, emitted when a write request or a simulation
// tick mutates the store.
type ModbusSlaveDataChangedPayload struct {
	ConnectionID ConnectionID
	DataType     string
	Address      uint16
	Quantity     uint16
	Timestamp    int64
}
