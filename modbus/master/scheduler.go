package master

import (
	"context"
	"time"

	"github.com/vienkmt/commscore/modbus/proto"
	"github.com/vienkmt/commscore/modbus/rtu"
)

// PollEntry is one periodic request in a polling schedule.
type PollEntry struct {
	Request proto.Request
	OnError func(error)
	OnResult func(Result)
}

// Executor sends a request and blocks for its result, used by the scheduler
// so it stays transport-agnostic (RTU bus or TCP session).
type Executor interface {
	Execute(ctx context.Context, req proto.Request, timeout time.Duration) Result
}

// Scheduler issues a fixed list of requests round-robin on an interval,
// pacing each request by the RTU inter-frame delay so a single physical bus
// is never double-driven. Ref: spec.md §4.6 polling scheduler.
type Scheduler struct {
	executor  Executor
	entries   []PollEntry
	interval  time.Duration
	baudRate  int
	timeout   time.Duration
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithResponseTimeout overrides the default 1000ms per-request timeout.
func WithResponseTimeout(timeout time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.timeout = timeout }
}

// WithBaudRate sets the bus baud rate used to compute the inter-frame delay.
// Zero (the default) means no RTU pacing is applied, appropriate for a pure
// TCP master.
func WithBaudRate(baud int) SchedulerOption {
	return func(s *Scheduler) { s.baudRate = baud }
}

// NewScheduler builds a round-robin poller over entries, firing every interval.
func NewScheduler(executor Executor, entries []PollEntry, interval time.Duration, options ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		executor: executor,
		entries:  entries,
		interval: interval,
		timeout:  DefaultResponseTimeout,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Run polls each entry in order, once per tick, until ctx is cancelled. A
// per-request timeout is reported to that entry's OnError, not treated as a
// scheduler-fatal error.
func (s *Scheduler) Run(ctx context.Context) {
	if len(s.entries) == 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

func (s *Scheduler) pollOnce(ctx context.Context) {
	delay := time.Duration(0)
	if s.baudRate > 0 {
		delay = rtu.InterFrameDelay(s.baudRate)
	}
	for i, entry := range s.entries {
		if ctx.Err() != nil {
			return
		}
		result := s.executor.Execute(ctx, entry.Request, s.timeout)
		if result.Err != nil && entry.OnError != nil {
			entry.OnError(result.Err)
		} else if result.Err == nil && entry.OnResult != nil {
			entry.OnResult(result)
		}
		if i < len(s.entries)-1 && delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
	}
}
