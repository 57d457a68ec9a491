package master

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vienkmt/commscore/modbus/proto"
)

type countingExecutor struct {
	calls int32
}

func (e *countingExecutor) Execute(ctx context.Context, req proto.Request, timeout time.Duration) Result {
	atomic.AddInt32(&e.calls, 1)
	return Result{Values: []uint16{1}}
}

func TestSchedulerPollsEveryEntryEachTick(t *testing.T) {
	executor := &countingExecutor{}
	entries := []PollEntry{
		{Request: proto.Request{FunctionCode: proto.FuncReadHoldingRegisters, Quantity: 1}},
		{Request: proto.Request{FunctionCode: proto.FuncReadInputRegisters, Quantity: 1}},
	}
	scheduler := NewScheduler(executor, entries, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 70*time.Millisecond)
	defer cancel()
	scheduler.Run(ctx)

	calls := atomic.LoadInt32(&executor.calls)
	if calls < 4 {
		t.Errorf("calls = %d, want at least 4 across ~3 ticks of 2 entries", calls)
	}
}

func TestSchedulerReportsErrorPerEntry(t *testing.T) {
	errExecutor := &erroringExecutor{}
	var gotErr error
	entries := []PollEntry{
		{
			Request: proto.Request{FunctionCode: proto.FuncReadHoldingRegisters, Quantity: 1},
			OnError: func(err error) { gotErr = err },
		},
	}
	scheduler := NewScheduler(errExecutor, entries, 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()
	scheduler.Run(ctx)

	if gotErr == nil {
		t.Fatal("expected OnError to be invoked")
	}
}

type erroringExecutor struct{}

func (erroringExecutor) Execute(ctx context.Context, req proto.Request, timeout time.Duration) Result {
	return Result{Err: context.DeadlineExceeded}
}
