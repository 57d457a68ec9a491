package slave

import (
	"sync"
	"time"

	"github.com/vienkmt/commscore/modbus/proto"
)

// FunctionStats tracks request counts and response-time aggregates for one
// function code.
type FunctionStats struct {
	Count    uint64
	Success  uint64
	Errors   uint64
	MinNanos int64
	MaxNanos int64
	SumNanos int64
}

// AverageNanos returns the mean response time, or 0 if no requests recorded.
func (f FunctionStats) AverageNanos() int64 {
	if f.Count == 0 {
		return 0
	}
	return f.SumNanos / int64(f.Count)
}

// Stats aggregates slave-wide and per-function-code request statistics.
type Stats struct {
	mu          sync.Mutex
	total       uint64
	perFunction map[proto.FunctionCode]*FunctionStats
	firstAt     time.Time
	lastAt      time.Time
}

// NewStats returns an empty Stats tracker.
func NewStats() *Stats {
	return &Stats{perFunction: make(map[proto.FunctionCode]*FunctionStats)}
}

// Record logs one request's outcome and response time against fc.
func (s *Stats) Record(fc proto.FunctionCode, success bool, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if s.total == 0 {
		s.firstAt = now
	}
	s.lastAt = now
	s.total++

	fs, ok := s.perFunction[fc]
	if !ok {
		fs = &FunctionStats{MinNanos: -1}
		s.perFunction[fc] = fs
	}
	fs.Count++
	if success {
		fs.Success++
	} else {
		fs.Errors++
	}
	nanos := elapsed.Nanoseconds()
	fs.SumNanos += nanos
	if fs.MinNanos == -1 || nanos < fs.MinNanos {
		fs.MinNanos = nanos
	}
	if nanos > fs.MaxNanos {
		fs.MaxNanos = nanos
	}
}

// Snapshot is an immutable copy of the current statistics, safe to read
// without holding the Stats lock.
type Snapshot struct {
	Total       uint64
	PerFunction map[proto.FunctionCode]FunctionStats
	RPS         float64
}

// Snapshot computes the derived requests-per-second figure from the first
// and last recorded request timestamps.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Snapshot{Total: s.total, PerFunction: make(map[proto.FunctionCode]FunctionStats, len(s.perFunction))}
	for fc, fs := range s.perFunction {
		out.PerFunction[fc] = *fs
	}
	durationMs := s.lastAt.Sub(s.firstAt).Milliseconds()
	if durationMs > 0 {
		out.RPS = float64(s.total) / (float64(durationMs) / 1000)
	}
	return out
}
