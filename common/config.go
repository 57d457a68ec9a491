package common

import "time"

// SerialPortDescriptor describes one OS-reported USB serial port.
// Ref: spec.md §3 (Serial port descriptor).
type SerialPortDescriptor struct {
	Name         string // platform path: COMn on Windows, /dev/tty* elsewhere
	PortType     string // short display name
	Manufacturer string // USB descriptor, when available
	Product      string // USB descriptor, when available
}

// Parity values accepted by SerialConfig.Parity.
const (
	ParityNone = "none"
	ParityOdd  = "odd"
	ParityEven = "even"
)

// SerialConfig configures an open_port command.
// Ref: spec.md §3 (Serial configuration).
type SerialConfig struct {
	PortName string
	BaudRate int
	DataBits int    // one of 5,6,7,8
	StopBits string // "1", "1.5", "2" — "1.5" is mapped to "2"
	Parity   string // none, odd, even
	DTR      bool
	RTS      bool
}

// TCPClientConfig configures a tcp_client_connect command.
type TCPClientConfig struct {
	Host         string
	Port         int
	ConnectionID ConnectionID
}

// TCPServerConfig configures a tcp_server_start command.
type TCPServerConfig struct {
	BindAddress string
	Port        int
	ServerID    ConnectionID
	MaxClients  int
}

// MQTTProtocol selects the MQTT transport.
type MQTTProtocol string

const (
	MQTTProtocolTCP MQTTProtocol = "tcp"
	MQTTProtocolTLS MQTTProtocol = "tls"
	MQTTProtocolWS  MQTTProtocol = "ws"
	MQTTProtocolWSS MQTTProtocol = "wss"
)

// LWTConfig is a Last Will and Testament the broker publishes on a client's
// behalf if the client dies ungracefully.
type LWTConfig struct {
	Topic   string
	Message string
	QoS     byte
	Retain  bool
}

// MQTTConfig configures an mqtt_connect command.
type MQTTConfig struct {
	ConnectionID  ConnectionID
	BrokerHost    string
	BrokerPort    int
	ClientID      string
	Username      string
	Password      string
	CleanSession  bool
	KeepAliveSecs int
	Protocol      MQTTProtocol
	LWT           *LWTConfig
}

// TCPClientInfo describes one client connected to a TCP server, returned by
// tcp_server_get_clients.
type TCPClientInfo struct {
	ClientID     string
	RemoteAddr   string
	ConnectedAt  time.Time
}

// ModbusTransport selects the wire transport a Modbus endpoint runs over.
type ModbusTransport string

const (
	ModbusTransportTCP ModbusTransport = "tcp"
	ModbusTransportRTU ModbusTransport = "rtu"
)

// ModbusMasterConfig configures a modbus_master_connect command. For
// ModbusTransportTCP, Host/Port address the slave; for ModbusTransportRTU,
// Serial addresses the bus. UnitID is the default target for requests that
// don't override it.
type ModbusMasterConfig struct {
	ConnectionID ConnectionID
	Transport    ModbusTransport
	Host         string
	Port         int
	Serial       SerialConfig
	UnitID       byte
}

// ModbusSlaveConfig configures a modbus_slave_start command. For
// ModbusTransportTCP, BindAddress/Port describe the listener; for
// ModbusTransportRTU, Serial addresses the bus and UnitID is the single
// address this slave answers to.
type ModbusSlaveConfig struct {
	ConnectionID ConnectionID
	Transport    ModbusTransport
	BindAddress  string
	Port         int
	Serial       SerialConfig
	UnitID       byte
}
