package db

import (
	"context"
	"sync"
)

type memoryTxKey struct{}

// memoryTx collects the undo steps of the writes made inside one transaction.
type memoryTx struct {
	runner *MemoryTxRunner
	mu     sync.Mutex
	undo   []func()
}

// MemoryTxRunner gives in-memory stores all-or-nothing semantics.
// Transactions are serialized. On error only the writes made inside the
// transaction are reverted, newest first; writes made outside it by other
// callers are kept.
type MemoryTxRunner struct {
	mu sync.Mutex
}

func NewMemoryTxRunner() *MemoryTxRunner {
	return &MemoryTxRunner{}
}

func (r *MemoryTxRunner) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx, ok := ctx.Value(memoryTxKey{}).(*memoryTx); ok && tx.runner == r {
		return fn(ctx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &memoryTx{runner: r}
	if err := fn(context.WithValue(ctx, memoryTxKey{}, tx)); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// OnRollback registers undo to run if the in-memory transaction carried by
// ctx fails. Outside a transaction it does nothing and reports false.
// Stores call it while holding their own lock, after applying a write.
func OnRollback(ctx context.Context, undo func()) bool {
	tx, ok := ctx.Value(memoryTxKey{}).(*memoryTx)
	if !ok {
		return false
	}
	tx.mu.Lock()
	tx.undo = append(tx.undo, undo)
	tx.mu.Unlock()
	return true
}

func (tx *memoryTx) rollback() {
	tx.mu.Lock()
	undo := tx.undo
	tx.undo = nil
	tx.mu.Unlock()

	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
}
