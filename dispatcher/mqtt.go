package dispatcher

import (
	"context"
	"fmt"

	"github.com/vienkmt/commscore/common"
	"github.com/vienkmt/commscore/mqttengine"
)

// MQTTConnect opens a client session against a broker. Ref: spec.md §6
// mqtt_connect.
func (c *Core) MQTTConnect(ctx context.Context, cfg common.MQTTConfig) Result {
	if c.mqttSessions.Has(string(cfg.ConnectionID)) {
		return Err(common.ErrAlreadyOpen)
	}

	session, err := mqttengine.Connect(ctx, cfg, c.Bus, nil, mqttengine.WithLogger(c.Logger))
	if err != nil {
		return Err(err)
	}

	if !c.mqttSessions.Put(string(cfg.ConnectionID), session) {
		session.Close(ctx)
		return Err(common.ErrAlreadyOpen)
	}
	return Ok(fmt.Sprintf("connected %s", cfg.ConnectionID))
}

// MQTTDisconnect closes a client session. Ref: spec.md §6 mqtt_disconnect.
func (c *Core) MQTTDisconnect(ctx context.Context, id common.ConnectionID) Result {
	session, ok := c.mqttSessions.Remove(string(id))
	if !ok {
		return Err(common.ErrNotFound)
	}
	if err := session.Close(ctx); err != nil {
		return Err(err)
	}
	return Ok(fmt.Sprintf("disconnected %s", id))
}

// MQTTSubscribe subscribes a session to topic at qos. Ref: spec.md §6
// mqtt_subscribe.
func (c *Core) MQTTSubscribe(id common.ConnectionID, topic string, qos byte) Result {
	session, ok := c.mqttSessions.Get(string(id))
	if !ok {
		return Err(common.ErrNotFound)
	}
	if err := session.Subscribe(topic, qos); err != nil {
		return Err(err)
	}
	return Ok(fmt.Sprintf("subscribed %s to %s", id, topic))
}

// MQTTUnsubscribe removes a session's subscription. Ref: spec.md §6
// mqtt_unsubscribe.
func (c *Core) MQTTUnsubscribe(id common.ConnectionID, topic string) Result {
	session, ok := c.mqttSessions.Get(string(id))
	if !ok {
		return Err(common.ErrNotFound)
	}
	if err := session.Unsubscribe(topic); err != nil {
		return Err(err)
	}
	return Ok(fmt.Sprintf("unsubscribed %s from %s", id, topic))
}

// MQTTPublish publishes payload to topic. Ref: spec.md §6 mqtt_publish.
func (c *Core) MQTTPublish(id common.ConnectionID, topic string, payload string, isHex bool, qos byte, retain bool) Result {
	session, ok := c.mqttSessions.Get(string(id))
	if !ok {
		return Err(common.ErrNotFound)
	}

	data := decodePayload(payload, isHex)
	if err := session.Publish(topic, data, qos, retain); err != nil {
		return Err(err)
	}
	return Ok(fmt.Sprintf("published %d bytes to %s", len(data), topic))
}

// IsMQTTConnected reports whether id's session is still live.
func (c *Core) IsMQTTConnected(id common.ConnectionID) bool {
	session, ok := c.mqttSessions.Get(string(id))
	if !ok {
		return false
	}
	return session.Running()
}
