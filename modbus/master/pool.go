package master

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vienkmt/commscore/common"
	"github.com/vienkmt/commscore/logging"
	"github.com/vienkmt/commscore/modbus/proto"
)

// MaxTransactions is the span of the 16-bit transaction id, sized so the
// free-id channel never blocks a Place call.
const MaxTransactions = 0xFFFF + 1

// DefaultResponseTimeout is the per-request timeout used when a poll entry
// doesn't override it.
const DefaultResponseTimeout = 1000 * time.Millisecond

// TransactionPool correlates TCP requests with their MBAP transaction id, and
// times out requests that never get a reply.
type TransactionPool struct {
	logger       common.LoggerInterface
	mu           sync.Mutex
	transactions map[uint16]*Transaction
	freeIDs      chan uint16
	done         chan struct{}
	timeout      time.Duration
	closeOnce    sync.Once
}

// PoolOption configures a TransactionPool.
type PoolOption func(*TransactionPool)

// WithPoolLogger sets the pool's logger.
func WithPoolLogger(logger common.LoggerInterface) PoolOption {
	return func(p *TransactionPool) { p.logger = logger }
}

// WithPoolTimeout overrides the default per-transaction timeout.
func WithPoolTimeout(timeout time.Duration) PoolOption {
	return func(p *TransactionPool) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// NewTransactionPool builds a pool with all 65536 transaction ids free and
// starts its timeout monitor.
func NewTransactionPool(options ...PoolOption) *TransactionPool {
	p := &TransactionPool{
		logger:       logging.NewNoopLogger(),
		transactions: make(map[uint16]*Transaction),
		freeIDs:      make(chan uint16, MaxTransactions),
		done:         make(chan struct{}),
		timeout:      DefaultResponseTimeout,
	}
	for _, opt := range options {
		opt(p)
	}
	for i := 0; i < MaxTransactions; i++ {
		p.freeIDs <- uint16(i)
	}
	go p.timeoutMonitor()
	return p
}

// Close cancels every pending transaction and stops the timeout monitor.
func (p *TransactionPool) Close() {
	ctx := context.Background()
	p.closeOnce.Do(func() {
		close(p.done)
		p.mu.Lock()
		defer p.mu.Unlock()
		if len(p.transactions) > 0 {
			p.logger.Warn(ctx, "transaction pool closing with %d in-flight transactions", len(p.transactions))
		}
		for id, tx := range p.transactions {
			tx.Complete(Result{Err: fmt.Errorf("modbus: transaction pool closing")})
			delete(p.transactions, id)
		}
	})
}

func (p *TransactionPool) timeoutMonitor() {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.checkTimeouts()
		}
	}
}

func (p *TransactionPool) checkTimeouts() {
	ctx := context.Background()
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, tx := range p.transactions {
		if tx.Lifetime() > p.timeout {
			delete(p.transactions, id)
			p.logger.Warn(ctx, "transaction %d timed out after %v", id, p.timeout)
			tx.Complete(Result{Err: fmt.Errorf("modbus: request timed out after %v", p.timeout)})
			p.returnID(id)
		}
	}
}

// Place assigns a free transaction id to req and tracks it for correlation.
func (p *TransactionPool) Place(ctx context.Context, req proto.Request) (*Transaction, error) {
	var id uint16
	select {
	case id = <-p.freeIDs:
	default:
		p.logger.Error(ctx, "transaction pool exhausted")
		return nil, fmt.Errorf("modbus: transaction pool exhausted")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	tx := newTransaction(ctx, id, req)
	p.transactions[id] = tx
	p.logger.Debug(ctx, "placed transaction %d, function=%d", id, req.FunctionCode)
	return tx, nil
}

// Release removes and returns the transaction for id, if still pending.
func (p *TransactionPool) Release(id uint16) (*Transaction, bool) {
	ctx := context.Background()
	p.mu.Lock()
	defer p.mu.Unlock()
	tx, ok := p.transactions[id]
	if ok {
		delete(p.transactions, id)
		p.logger.Debug(ctx, "released transaction %d", id)
		p.returnID(id)
	} else {
		p.logger.Warn(ctx, "received response for unknown transaction %d", id)
	}
	return tx, ok
}

func (p *TransactionPool) returnID(id uint16) {
	select {
	case p.freeIDs <- id:
	default:
	}
}

// Count reports the number of transactions currently in flight.
func (p *TransactionPool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.transactions)
}
