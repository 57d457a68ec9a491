package serialengine

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/vienkmt/commscore/common"
)

// readBufferSize is the per-read buffer. Ref: spec.md §4.2 Reader thread.
const readBufferSize = 4096

// gapDelay returns the idle-gap threshold after which accumulated bytes are
// flushed as one event, clamped to [5ms, 50ms].
// Ref: spec.md §4.2 Reader thread gap-based batching.
func gapDelay(baudRate int) time.Duration {
	ms := (256 * 10 * 1000) / baudRate
	if ms < 5 {
		ms = 5
	}
	if ms > 50 {
		ms = 50
	}
	return time.Duration(ms) * time.Millisecond
}

// readLoop accumulates bytes until an idle gap elapses, then emits them as a
// single serial-data event, batching bursts that arrive in quick succession
// while still respecting message boundaries on a quiet bus.
func (p *Port) readLoop(ctx context.Context) {
	defer close(p.done)

	gap := gapDelay(p.config.BaudRate)
	p.logger.Debug(ctx, "starting read loop for %s, gap=%s", p.config.PortName, gap)
	defer p.logger.Debug(ctx, "exiting read loop for %s", p.config.PortName)

	var pending []byte
	var lastByte time.Time
	buf := make([]byte, readBufferSize)

	flush := func() {
		if len(pending) == 0 {
			return
		}
		p.logger.Trace(ctx, "flushing %d bytes read from %s", len(pending), p.config.PortName)
		if hexLogger, ok := p.logger.(common.LoggerInterfaceHexdump); ok {
			hexLogger.Hexdump(ctx, pending)
		}
		p.emitData(pending)
		pending = nil
	}

	for p.running.Load() {
		p.handleMu.Lock()
		n, err := p.handle.Read(buf)
		p.handleMu.Unlock()

		if err != nil {
			if isTimeout(err) {
				if len(pending) > 0 && time.Since(lastByte) >= gap {
					flush()
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				flush()
				p.logger.Info(ctx, "serial port %s closed (eof)", p.config.PortName)
				p.emitDisconnect("eof")
				return
			}
			flush()
			p.logger.Error(ctx, "serial port %s read error: %v", p.config.PortName, err)
			p.emitDisconnect(err.Error())
			return
		}

		if n > 0 {
			pending = append(pending, buf[:n]...)
			lastByte = time.Now()
		}
	}
	flush()
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	var t timeouter
	if errors.As(err, &t) {
		return t.Timeout()
	}
	return false
}

func (p *Port) emitData(data []byte) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(common.Event{
		Topic: common.TopicSerialData,
		Payload: common.SerialDataPayload{
			PortName:  p.config.PortName,
			Data:      data,
			Timestamp: common.NowMillis(),
		},
		Timestamp: common.NowMillis(),
	})
}

// emitDisconnect publishes the empty-payload sentinel required by the data
// topic plus the dedicated disconnect topic, then lets the caller exit.
func (p *Port) emitDisconnect(reason string) {
	if p.bus == nil {
		return
	}
	now := common.NowMillis()
	p.bus.Publish(common.Event{
		Topic:     common.TopicSerialData,
		Payload:   common.SerialDataPayload{PortName: p.config.PortName, Data: nil, Timestamp: now},
		Timestamp: now,
	})
	p.bus.Publish(common.Event{
		Topic:     common.TopicSerialDisconnected,
		Payload:   common.SerialDisconnectedPayload{PortName: p.config.PortName, Reason: reason, Timestamp: now},
		Timestamp: now,
	})
}
