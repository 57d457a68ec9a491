package serialengine

import (
	"context"
	"time"

	"github.com/vienkmt/commscore/common"
)

// writeChunkSize is the flush granularity used when byte_delay_us is zero.
const writeChunkSize = 256

// interChunkDelay separates successive 256-byte chunks when the caller
// hasn't asked for per-byte pacing. Ref: spec.md §4.2 Write operation.
const interChunkDelay = 500 * time.Microsecond

// Write parses payload (hex-tolerant if isHex) and sends it to the port,
// either one byte at a time with byteDelay between bytes, or in 256-byte
// chunks with a fixed inter-chunk delay. The handle mutex is never held
// during the inter-byte/inter-chunk sleep.
func (p *Port) Write(payload string, isHex bool, byteDelay time.Duration) error {
	data := []byte(payload)
	if isHex {
		data = common.ParseHexTolerant(payload)
	}
	if len(data) == 0 {
		return nil
	}

	ctx := context.Background()
	p.logger.Debug(ctx, "writing %d bytes to %s (byte_delay=%s)", len(data), p.config.PortName, byteDelay)
	if hexLogger, ok := p.logger.(common.LoggerInterfaceHexdump); ok {
		hexLogger.Hexdump(ctx, data)
	}

	if byteDelay > 0 {
		return p.writeByteDelayed(data, byteDelay)
	}
	return p.writeChunked(data)
}

func (p *Port) writeByteDelayed(data []byte, delay time.Duration) error {
	for i, b := range data {
		if err := p.writeLocked([]byte{b}); err != nil {
			return err
		}
		if i < len(data)-1 {
			time.Sleep(delay)
		}
	}
	return p.flushLocked()
}

func (p *Port) writeChunked(data []byte) error {
	for offset := 0; offset < len(data); offset += writeChunkSize {
		end := offset + writeChunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := p.writeLocked(data[offset:end]); err != nil {
			return err
		}
		if err := p.flushLocked(); err != nil {
			return err
		}
		if end < len(data) {
			time.Sleep(interChunkDelay)
		}
	}
	return nil
}

func (p *Port) writeLocked(b []byte) error {
	p.handleMu.Lock()
	defer p.handleMu.Unlock()
	_, err := p.handle.Write(b)
	return err
}

func (p *Port) flushLocked() error {
	p.handleMu.Lock()
	defer p.handleMu.Unlock()
	return p.handle.Flush()
}
