package slave

import (
	"math/rand"
	"time"

	"github.com/vienkmt/commscore/modbus/proto"
)

// DelayConfig controls the artificial response latency applied after a
// response frame is built and before it is transmitted.
type DelayConfig struct {
	GlobalMs  int64
	PerFuncMs map[proto.FunctionCode]int64
	MinMs     int64
	MaxMs     int64
}

// Compute returns the delay to apply for fc: global + per-function + a
// uniform random component in [MinMs, MaxMs] when MaxMs > MinMs.
func (d DelayConfig) Compute(fc proto.FunctionCode) time.Duration {
	total := d.GlobalMs + d.PerFuncMs[fc]
	if d.MaxMs > d.MinMs {
		total += d.MinMs + rand.Int63n(d.MaxMs-d.MinMs+1)
	} else if d.MinMs > 0 {
		total += d.MinMs
	}
	if total <= 0 {
		return 0
	}
	return time.Duration(total) * time.Millisecond
}
