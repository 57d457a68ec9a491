// Package mqttengine implements the MQTT Engine: one client session per
// connection id, built on github.com/eclipse/paho.mqtt.golang.
// Ref: spec.md §4.5.
//
// Grounded on the USR-DR164 gateway pattern (mqtt-modbus-bridge's
// internal/mqtt package): ClientOptions built from a config struct,
// OnConnectHandler/ConnectionLostHandler driving connection-state
// notifications, and a message callback forwarding payloads off the
// paho internal goroutine. Subscription-set tracking and the protocol-to-
// broker-URL-scheme mapping are new, since the teacher example hardcodes
// a single plain-TCP broker connection.
package mqttengine

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/vienkmt/commscore/common"
	"github.com/vienkmt/commscore/eventbus"
	"github.com/vienkmt/commscore/logging"
)

// maxReconnectInterval is the ceiling paho's built-in exponential backoff
// grows to between reconnect attempts. Ref: spec.md §9 open question on
// MQTT's missing backoff ceiling.
const maxReconnectInterval = 30 * time.Second

// connLostSleep is how long the connection-lost handler waits between
// emitting the error status and the disconnected status; the transport layer (paho's auto-reconnect) handles
// the actual reconnection. Ref: spec.md §4.5.
const connLostSleep = 2 * time.Second

// QoS mapping: anything other than 0 or 1 is ExactlyOnce. Ref: spec.md §4.5.
func qosFor(qos byte) byte {
	switch qos {
	case 0, 1:
		return qos
	default:
		return 2
	}
}

// Session is one MQTT client connection.
type Session struct {
	id     common.ConnectionID
	config common.MQTTConfig
	logger common.LoggerInterface
	bus    *eventbus.Bus

	client mqtt.Client

	subsMu sync.Mutex
	subs   map[string]byte

	errMu    sync.Mutex
	lastErr  error
	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a Session.
type Option func(*Session)

// WithLogger attaches a logger.
func WithLogger(logger common.LoggerInterface) Option {
	return func(s *Session) { s.logger = logger }
}

// CACertPool is injected by callers needing a TLS connection; nil uses the
// system root pool.
type CACertPool = *x509.CertPool

// Connect builds the options bundle, selects the transport by protocol,
// and connects. Ref: spec.md §4.5.
func Connect(ctx context.Context, cfg common.MQTTConfig, bus *eventbus.Bus, caPool CACertPool, options ...Option) (*Session, error) {
	s := &Session{
		id:     cfg.ConnectionID,
		config: cfg,
		logger: logging.NewNoopLogger(),
		bus:    bus,
		subs:   make(map[string]byte),
		done:   make(chan struct{}),
	}
	for _, opt := range options {
		opt(s)
	}

	opts := newClientOptions(cfg, caPool)
	opts.SetDefaultPublishHandler(s.onMessage)
	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(s.onConnectionLost)

	s.client = mqtt.NewClient(opts)

	s.logger.Info(ctx, "mqtt session %s connecting to %s", s.id, brokerURL(cfg))
	token := s.client.Connect()
	if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		if err := token.Error(); err != nil {
			s.logger.Error(ctx, "mqtt session %s connect failed: %v", s.id, err)
			close(s.done)
			return nil, err
		}
		s.logger.Error(ctx, "mqtt session %s connect timed out", s.id)
		close(s.done)
		return nil, fmt.Errorf("mqtt: connect timed out")
	}
	return s, nil
}

// newClientOptions builds the paho options bundle from config, per
// spec.md §4.5: credentials only when username is non-empty, LWT only
// when topic and message are both present, TLS config only for the tls
// and wss protocols. Split out from Connect so the bundle can be
// inspected without dialing a real broker.
func newClientOptions(cfg common.MQTTConfig, caPool CACertPool) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(cfg))
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(cfg.CleanSession)
	if cfg.KeepAliveSecs > 0 {
		opts.SetKeepAlive(time.Duration(cfg.KeepAliveSecs) * time.Second)
	}
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(maxReconnectInterval)

	// Credentials are supplied only when username is non-empty; password
	// may legitimately be empty for token-as-username IoT platforms.
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	if cfg.LWT != nil && cfg.LWT.Topic != "" && cfg.LWT.Message != "" {
		opts.SetWill(cfg.LWT.Topic, cfg.LWT.Message, qosFor(cfg.LWT.QoS), cfg.LWT.Retain)
	}

	if cfg.Protocol == common.MQTTProtocolTLS || cfg.Protocol == common.MQTTProtocolWSS {
		opts.SetTLSConfig(&tls.Config{RootCAs: caPool})
	}

	return opts
}

// brokerURL maps protocol + host + port to a paho broker URL.
// Ref: spec.md §4.5 transport selection.
func brokerURL(cfg common.MQTTConfig) string {
	scheme := "tcp"
	switch cfg.Protocol {
	case common.MQTTProtocolTLS:
		scheme = "ssl"
	case common.MQTTProtocolWS:
		scheme = "ws"
	case common.MQTTProtocolWSS:
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.BrokerHost, cfg.BrokerPort)
}

func (s *Session) onConnect(client mqtt.Client) {
	s.logger.Info(context.Background(), "mqtt session %s connected", s.id)
	s.emitStatus(common.MQTTStatusConnected, "")
}

func (s *Session) onConnectionLost(client mqtt.Client, err error) {
	ctx := context.Background()
	s.logger.Warn(ctx, "mqtt session %s connection lost: %v", s.id, err)
	s.errMu.Lock()
	s.lastErr = err
	s.errMu.Unlock()
	s.emitStatus(common.MQTTStatusError, err.Error())
	time.Sleep(connLostSleep)
	s.emitStatus(common.MQTTStatusDisconnected, "")
}

func (s *Session) onMessage(client mqtt.Client, msg mqtt.Message) {
	ctx := context.Background()
	s.logger.Trace(ctx, "mqtt session %s received %d bytes on %s (qos=%d)", s.id, len(msg.Payload()), msg.Topic(), msg.Qos())
	if hexLogger, ok := s.logger.(common.LoggerInterfaceHexdump); ok {
		hexLogger.Hexdump(ctx, msg.Payload())
	}
	if s.bus == nil {
		return
	}
	s.bus.Publish(common.Event{
		Topic: common.TopicMQTTData,
		Payload: common.MQTTDataPayload{
			ConnectionID: s.id,
			Topic:        msg.Topic(),
			Payload:      msg.Payload(),
			QoS:          msg.Qos(),
			Retain:       msg.Retained(),
			Timestamp:    common.NowMillis(),
			Direction:    common.DirectionRX,
		},
		Timestamp: common.NowMillis(),
	})
}

// ID returns the connection id this session was opened under.
func (s *Session) ID() common.ConnectionID { return s.id }

// LastError returns the most recent connection-lost error, if any.
func (s *Session) LastError() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.lastErr
}

// Running reports whether the underlying client still considers itself
// connected or auto-reconnecting (i.e. hasn't been explicitly closed).
func (s *Session) Running() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Subscribe adds a subscription and tracks it in the per-session set.
func (s *Session) Subscribe(topic string, qos byte) error {
	ctx := context.Background()
	qos = qosFor(qos)
	s.logger.Info(ctx, "mqtt session %s subscribing to %s (qos=%d)", s.id, topic, qos)
	token := s.client.Subscribe(topic, qos, nil)
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		if err := token.Error(); err != nil {
			s.logger.Error(ctx, "mqtt session %s subscribe to %s failed: %v", s.id, topic, err)
			return err
		}
		s.logger.Error(ctx, "mqtt session %s subscribe to %s timed out", s.id, topic)
		return fmt.Errorf("mqtt: subscribe to %q timed out", topic)
	}
	s.subsMu.Lock()
	s.subs[topic] = qos
	s.subsMu.Unlock()
	return nil
}

// Unsubscribe removes a subscription.
func (s *Session) Unsubscribe(topic string) error {
	ctx := context.Background()
	s.logger.Info(ctx, "mqtt session %s unsubscribing from %s", s.id, topic)
	token := s.client.Unsubscribe(topic)
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		if err := token.Error(); err != nil {
			s.logger.Error(ctx, "mqtt session %s unsubscribe from %s failed: %v", s.id, topic, err)
			return err
		}
		s.logger.Error(ctx, "mqtt session %s unsubscribe from %s timed out", s.id, topic)
		return fmt.Errorf("mqtt: unsubscribe from %q timed out", topic)
	}
	s.subsMu.Lock()
	delete(s.subs, topic)
	s.subsMu.Unlock()
	return nil
}

// Subscriptions returns the current subscription set so the shell can
// enumerate it.
func (s *Session) Subscriptions() map[string]byte {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	out := make(map[string]byte, len(s.subs))
	for k, v := range s.subs {
		out[k] = v
	}
	return out
}

// Publish sends a message and emits the tx-direction data event.
func (s *Session) Publish(topic string, payload []byte, qos byte, retain bool) error {
	ctx := context.Background()
	qos = qosFor(qos)
	s.logger.Debug(ctx, "mqtt session %s publishing %d bytes to %s (qos=%d, retain=%v)", s.id, len(payload), topic, qos, retain)
	if hexLogger, ok := s.logger.(common.LoggerInterfaceHexdump); ok {
		hexLogger.Hexdump(ctx, payload)
	}
	token := s.client.Publish(topic, qos, retain, payload)
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		if err := token.Error(); err != nil {
			s.logger.Error(ctx, "mqtt session %s publish to %s failed: %v", s.id, topic, err)
			return err
		}
		s.logger.Error(ctx, "mqtt session %s publish to %s timed out", s.id, topic)
		return fmt.Errorf("mqtt: publish to %q timed out", topic)
	}
	if s.bus != nil {
		s.bus.Publish(common.Event{
			Topic: common.TopicMQTTData,
			Payload: common.MQTTDataPayload{
				ConnectionID: s.id,
				Topic:        topic,
				Payload:      payload,
				QoS:          qos,
				Retain:       retain,
				Timestamp:    common.NowMillis(),
				Direction:    common.DirectionTX,
			},
			Timestamp: common.NowMillis(),
		})
	}
	return nil
}

// Close disconnects the session. Ref: spec.md §4.5.
func (s *Session) Close(ctx context.Context) error {
	s.logger.Info(ctx, "closing mqtt session %s", s.id)
	s.stopOnce.Do(func() {
		if s.client != nil && s.client.IsConnected() {
			s.client.Disconnect(250)
		}
		s.emitStatus(common.MQTTStatusDisconnected, "")
		close(s.done)
	})
	return nil
}

func (s *Session) emitStatus(status, message string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(common.Event{
		Topic: common.TopicMQTTStatus,
		Payload: common.MQTTStatusPayload{
			ConnectionID: s.id,
			Status:       status,
			Message:      message,
			Timestamp:    common.NowMillis(),
		},
		Timestamp: common.NowMillis(),
	})
}

var _ common.Endpoint = (*Session)(nil)
