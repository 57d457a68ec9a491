// Package master implements the Modbus master role: request construction,
// response parsing, transaction-id correlation over TCP, and a round-robin
// polling scheduler respecting the RTU inter-frame delay.
// Grounded on gomodbus's transport.Transaction and transport.TransactionPool.
package master

import (
	"context"
	"time"

	"github.com/vienkmt/commscore/modbus/proto"
)

// Transaction tracks one in-flight request awaiting its response.
type Transaction struct {
	ID         uint16
	Request    proto.Request
	ResponseCh chan proto.Request // unused; decoded responses are delivered on ResultCh
	ResultCh   chan Result
	ctx        context.Context
	cancel     context.CancelFunc
	createdAt  time.Time
}

// Result is what a transaction resolves to: either decoded values or an error
// (including a *proto.Error for a slave exception response).
type Result struct {
	Values []uint16
	Coils  []bool
	Err    error
}

func newTransaction(ctx context.Context, id uint16, req proto.Request) *Transaction {
	ctx, cancel := context.WithCancel(ctx)
	return &Transaction{
		ID:        id,
		Request:   req,
		ResultCh:  make(chan Result, 1),
		ctx:       ctx,
		cancel:    cancel,
		createdAt: time.Now(),
	}
}

// Complete delivers a result and releases the transaction's context.
func (t *Transaction) Complete(result Result) {
	select {
	case t.ResultCh <- result:
	default:
	}
	t.cancel()
}

// Lifetime reports how long the transaction has been outstanding.
func (t *Transaction) Lifetime() time.Duration {
	return time.Since(t.createdAt)
}
