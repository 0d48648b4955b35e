// Package mempool holds unconfirmed transactions. Admission and eviction move the unconfirmed
// (u_) account state only and run inside the ledger sequence.
package mempool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mezonai/dpos/dbop"
	"github.com/mezonai/dpos/events"
	"github.com/mezonai/dpos/interfaces"
	"github.com/mezonai/dpos/ledger"
	"github.com/mezonai/dpos/logx"
	"github.com/mezonai/dpos/monitoring"
	"github.com/mezonai/dpos/transaction"
	"github.com/mezonai/dpos/types"
)

var (
	ErrPoolFull          = errors.New("Transaction pool is full")
	ErrAlreadyInPool     = errors.New("Transaction is already in the pool")
	ErrAlreadyConfirmed  = errors.New("Transaction is already confirmed")
	ErrConflicting       = errors.New("Transaction conflicts with a pooled transaction")
	ErrSenderBlacklisted = errors.New("Sender is blacklisted")
)

type Config struct {
	MaxTxs int
}

type AccountReader interface {
	GetByAddr(addr string) (*types.Account, error)
}

type ConfirmedIDs interface {
	ConfirmedIDs(ids []string) ([]string, error)
}

type Mempool struct {
	cfg       Config
	engine    *transaction.Engine
	accounts  AccountReader
	executor  dbop.Executor
	confirmed ConfirmedIDs
	seq       *ledger.Sequence
	tip       interfaces.LastBlockProvider
	dedup     *DedupService
	bus       *events.EventBus

	mu     sync.RWMutex
	txs    []*types.Transaction
	byID   map[string]*types.Transaction
	banned map[string]string
}

func NewMempool(
	cfg Config,
	engine *transaction.Engine,
	accounts AccountReader,
	executor dbop.Executor,
	confirmed ConfirmedIDs,
	seq *ledger.Sequence,
	tip interfaces.LastBlockProvider,
	dedup *DedupService,
	bus *events.EventBus,
) *Mempool {
	return &Mempool{
		cfg:       cfg,
		engine:    engine,
		accounts:  accounts,
		executor:  executor,
		confirmed: confirmed,
		seq:       seq,
		tip:       tip,
		dedup:     dedup,
		bus:       bus,
		byID:      make(map[string]*types.Transaction),
		banned:    make(map[string]string),
	}
}

// SetBlacklist replaces the set of senders whose transactions are refused.
func (m *Mempool) SetBlacklist(banned map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.banned = make(map[string]string, len(banned))
	for addr, reason := range banned {
		m.banned[addr] = reason
	}
}

func (m *Mempool) isBanned(addr string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.banned[addr]
	return ok
}

func (m *Mempool) Has(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byID[id]
	return ok
}

func (m *Mempool) Get(id string) *types.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byID[id]
}

func (m *Mempool) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.txs)
}

// List returns up to limit pooled transactions in admission order. limit <= 0 means all.
func (m *Mempool) List(limit int) []*types.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.txs)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]*types.Transaction(nil), m.txs[:n]...)
}

func (m *Mempool) add(tx *types.Transaction) {
	m.mu.Lock()
	m.txs = append(m.txs, tx)
	m.byID[tx.ID] = tx
	size := len(m.txs)
	m.mu.Unlock()
	monitoring.SetMempoolSize(size)
}

func (m *Mempool) remove(id string) *types.Transaction {
	m.mu.Lock()
	defer func() {
		size := len(m.txs)
		m.mu.Unlock()
		monitoring.SetMempoolSize(size)
	}()
	tx, ok := m.byID[id]
	if !ok {
		return nil
	}
	delete(m.byID, id)
	for i, pooled := range m.txs {
		if pooled.ID == id {
			m.txs = append(m.txs[:i:i], m.txs[i+1:]...)
			break
		}
	}
	return tx
}

func (m *Mempool) clear() {
	m.mu.Lock()
	m.txs = nil
	m.byID = make(map[string]*types.Transaction)
	m.mu.Unlock()
	monitoring.SetMempoolSize(0)
}

// ProcessUnconfirmed verifies tx against confirmed state and, if valid, applies it to the
// unconfirmed state and pools it.
func (m *Mempool) ProcessUnconfirmed(ctx context.Context, tx *types.Transaction) error {
	return m.seq.Run(ctx, func(ctx context.Context) error {
		return m.admit(ctx, tx)
	})
}

func (m *Mempool) admit(ctx context.Context, tx *types.Transaction) error {
	if _, err := m.engine.ObjectNormalize(tx); err != nil {
		return m.reject(tx, monitoring.TxMalformed, err)
	}
	if m.Has(tx.ID) {
		return m.reject(tx, monitoring.TxDuplicated, ErrAlreadyInPool)
	}
	if m.isBanned(tx.SenderID) {
		return m.reject(tx, monitoring.TxSenderBlacklisted, ErrSenderBlacklisted)
	}
	if m.dedup.IsDuplicate(tx.ID) {
		return m.reject(tx, monitoring.TxAlreadyConfirmed, ErrAlreadyConfirmed)
	}
	confirmed, err := m.confirmed.ConfirmedIDs([]string{tx.ID})
	if err != nil {
		return err
	}
	if len(confirmed) > 0 {
		return m.reject(tx, monitoring.TxAlreadyConfirmed, ErrAlreadyConfirmed)
	}
	if m.cfg.MaxTxs > 0 && m.Len() >= m.cfg.MaxTxs {
		return m.reject(tx, monitoring.TxMempoolFull, ErrPoolFull)
	}

	sender, err := m.accounts.GetByAddr(tx.SenderID)
	if err != nil {
		return err
	}
	var height int64 = 1
	if last := m.tip.LastBlock(); last != nil {
		height = last.Height + 1
	}
	if err := m.engine.Verify(ctx, tx, sender, height); err != nil {
		return m.reject(tx, reasonOf(err), err)
	}

	conflicts, err := m.engine.FindConflicts(ctx, append(m.List(0), tx))
	if err != nil {
		return err
	}
	for _, c := range conflicts {
		if c.ID == tx.ID {
			return m.reject(tx, monitoring.TxConflicting, ErrConflicting)
		}
	}

	ops, err := m.engine.ApplyUnconfirmed(ctx, tx, sender)
	if err != nil {
		return m.reject(tx, reasonOf(err), err)
	}
	if err := m.executor.Execute(ctx, ops); err != nil {
		return fmt.Errorf("could not apply unconfirmed transaction %s: %w", tx.ID, err)
	}
	m.add(tx)
	if m.bus != nil {
		m.bus.Publish(events.NewTxAddedToPool(tx))
	}
	logx.Debug("MEMPOOL", "admitted transaction ", tx.ID, " from ", tx.SenderID)
	return nil
}

func (m *Mempool) reject(tx *types.Transaction, reason monitoring.TxRejectedReason, err error) error {
	monitoring.RecordRejectedTx(reason)
	id := ""
	if tx != nil {
		id = tx.ID
	}
	if m.bus != nil {
		m.bus.Publish(events.NewTxRejected(id, string(reason), err))
	}
	logx.Debug("MEMPOOL", "rejected transaction ", id, ": ", err)
	return err
}

func reasonOf(err error) monitoring.TxRejectedReason {
	switch {
	case errors.Is(err, transaction.ErrMalformed), errors.Is(err, transaction.ErrUnknownTransactionType),
		errors.Is(err, transaction.ErrIDMismatch), errors.Is(err, transaction.ErrAddressMismatch):
		return monitoring.TxMalformed
	case errors.Is(err, transaction.ErrSignatureInvalid):
		return monitoring.TxInvalidSignature
	case errors.Is(err, transaction.ErrMissingSender):
		return monitoring.TxSenderNotExist
	case errors.Is(err, transaction.ErrFeeTooLow):
		return monitoring.TxInvalidFee
	case errors.Is(err, transaction.ErrInsufficientBalance):
		return monitoring.TxInsufficientBalance
	}
	return monitoring.TxRejectedUnknown
}

// Evict drops id and reverts its unconfirmed effects.
func (m *Mempool) Evict(ctx context.Context, id string) (bool, error) {
	var found bool
	err := m.seq.Run(ctx, func(ctx context.Context) error {
		tx := m.remove(id)
		if tx == nil {
			return nil
		}
		found = true
		sender, err := m.accounts.GetByAddr(tx.SenderID)
		if err != nil {
			return err
		}
		if sender == nil {
			return fmt.Errorf("%w: %s", transaction.ErrMissingSender, tx.SenderID)
		}
		ops, err := m.engine.UndoUnconfirmed(ctx, tx, sender)
		if err != nil {
			return err
		}
		return m.executor.Execute(ctx, ops)
	})
	return found, err
}

// UndoAll returns the ops reverting the unconfirmed effects of every pooled transaction,
// newest first, moving the accounts in cache along. The pool itself is left untouched until
// OnBlockApplied or OnBlockDeleted.
func (m *Mempool) UndoAll(ctx context.Context, cache *ledger.AccountCache) ([]dbop.Op, []*types.Transaction, error) {
	pending := m.List(0)
	var ops []dbop.Op
	for i := len(pending) - 1; i >= 0; i-- {
		tx := pending[i]
		sender, err := cache.Get(tx.SenderID)
		if err != nil {
			return nil, nil, err
		}
		if sender == nil {
			return nil, nil, fmt.Errorf("%w: %s", transaction.ErrMissingSender, tx.SenderID)
		}
		undo, err := m.engine.UndoUnconfirmed(ctx, tx, sender)
		if err != nil {
			return nil, nil, fmt.Errorf("undo unconfirmed %s: %w", tx.ID, err)
		}
		if len(undo) > 1 {
			cache.Reflect(undo[1:])
		}
		ops = append(ops, undo...)
	}
	return ops, pending, nil
}

// OnBlockApplied resets the pool after block was committed together with the UndoAll ops.
// Transactions pending before the block and not confirmed by it are admitted again.
func (m *Mempool) OnBlockApplied(ctx context.Context, block *types.Block, pending []*types.Transaction) {
	confirmed := make(map[string]struct{}, len(block.Transactions))
	ids := make([]string, 0, len(block.Transactions))
	for _, tx := range block.Transactions {
		confirmed[tx.ID] = struct{}{}
		ids = append(ids, tx.ID)
	}
	m.dedup.Add(block.Height, ids)
	m.clear()
	for _, tx := range pending {
		if _, ok := confirmed[tx.ID]; ok {
			continue
		}
		m.readmit(ctx, tx)
	}
}

// OnBlockDeleted resets the pool after block was rolled back. Its transactions go back to
// the pool ahead of the ones pending before.
func (m *Mempool) OnBlockDeleted(ctx context.Context, block *types.Block, pending []*types.Transaction) {
	m.dedup.Remove(block.Height)
	m.clear()
	for _, tx := range block.Transactions {
		back := tx.Clone()
		back.BlockID, back.Height = "", 0
		m.readmit(ctx, back)
	}
	for _, tx := range pending {
		m.readmit(ctx, tx)
	}
}

func (m *Mempool) readmit(ctx context.Context, tx *types.Transaction) {
	if err := m.ProcessUnconfirmed(ctx, tx); err != nil {
		logx.Debug("MEMPOOL", "dropped transaction ", tx.ID, " on requeue: ", err)
	}
}
