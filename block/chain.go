package block

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mezonai/dpos/dbop"
	lerrors "github.com/mezonai/dpos/errors"
	"github.com/mezonai/dpos/events"
	"github.com/mezonai/dpos/hooks"
	"github.com/mezonai/dpos/ids"
	"github.com/mezonai/dpos/interfaces"
	"github.com/mezonai/dpos/ledger"
	"github.com/mezonai/dpos/logx"
	"github.com/mezonai/dpos/monitoring"
	"github.com/mezonai/dpos/rounds"
	"github.com/mezonai/dpos/transaction"
	"github.com/mezonai/dpos/types"
	"github.com/mezonai/dpos/utils"
)

var (
	ErrGenesisDeletion  = errors.New("Cannot delete genesis block")
	ErrCurBlockMissing  = errors.New("curBlock is null")
	ErrPrevBlockMissing = errors.New("previousBlock is null")
	ErrSlot             = errors.New("Failed to verify slot")
	ErrBlockTimestamp   = errors.New("Invalid block timestamp")
	ErrBlockExists      = errors.New("Block already exists")
	ErrNoGenesis        = errors.New("chain has no genesis block")
	ErrHalted           = errors.New("chain processing halted")
)

// VerificationError carries every reason a block failed header verification.
type VerificationError struct {
	BlockID string
	Errors  []string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("block %s failed verification: %s", e.BlockID, strings.Join(e.Errors, ", "))
}

// Store reads committed blocks.
type Store interface {
	ByHeight(height int64) (*types.Block, error)
	ByID(id string) (*types.Block, error)
	HasBlock(id string) (bool, error)
	LastHeight() (int64, error)
	LastIDs(n int) ([]string, error)
	Transactions(blockID string) ([]*types.Transaction, error)
}

// Pool is the unconfirmed pool as the chain drives it.
type Pool interface {
	interfaces.TxPool
	List(limit int) []*types.Transaction
	UndoAll(ctx context.Context, cache *ledger.AccountCache) ([]dbop.Op, []*types.Transaction, error)
	OnBlockApplied(ctx context.Context, block *types.Block, pending []*types.Transaction)
	OnBlockDeleted(ctx context.Context, block *types.Block, pending []*types.Transaction)
}

// ApplyPayload flows through the apply hook point right before a batch is committed.
type ApplyPayload struct {
	Block    *types.Block
	Backward bool
	Ops      []dbop.Op
}

// Chain applies and rolls back blocks. Every state change runs inside the ledger sequence
// and commits as one batch.
type Chain struct {
	ledger     *ledger.Ledger
	blocks     Store
	executor   dbop.Executor
	engine     *transaction.Engine
	verifier   *Verifier
	accountant *rounds.Accountant
	pool       Pool
	slots      utils.Slots
	clock      utils.Clock
	bus        *events.EventBus

	ApplyHooks *hooks.Point[*ApplyPayload]

	mu      sync.RWMutex
	haltErr error
}

func NewChain(
	l *ledger.Ledger,
	blocks Store,
	executor dbop.Executor,
	engine *transaction.Engine,
	verifier *Verifier,
	accountant *rounds.Accountant,
	pool Pool,
	slots utils.Slots,
	clock utils.Clock,
	bus *events.EventBus,
) *Chain {
	return &Chain{
		ledger:     l,
		blocks:     blocks,
		executor:   executor,
		engine:     engine,
		verifier:   verifier,
		accountant: accountant,
		pool:       pool,
		slots:      slots,
		clock:      clock,
		bus:        bus,
		ApplyHooks: hooks.NewPoint[*ApplyPayload]("blockApply"),
	}
}

func (c *Chain) LastBlock() *types.Block { return c.ledger.LastBlock() }

// Halted returns the invariant violation that stopped processing, if any.
func (c *Chain) Halted() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.haltErr
}

func (c *Chain) halt(err error) error {
	c.mu.Lock()
	if c.haltErr == nil {
		c.haltErr = err
	}
	c.mu.Unlock()
	logx.Error("CHAIN", "halting chain processing: ", err)
	return err
}

func (c *Chain) checkHalted() error {
	if err := c.Halted(); err != nil {
		return fmt.Errorf("%w: %v", ErrHalted, err)
	}
	return nil
}

// Load restores the tip from storage, applying genesis on an empty store.
func (c *Chain) Load(ctx context.Context, genesis *types.Block) error {
	height, err := c.blocks.LastHeight()
	if err != nil {
		return err
	}
	if height == 0 {
		if genesis == nil {
			return ErrNoGenesis
		}
		return c.ApplyGenesisBlock(ctx, genesis)
	}
	first, err := c.blocks.ByHeight(1)
	if err != nil {
		return err
	}
	if first == nil {
		return lerrors.NewError(lerrors.ErrCodeInconsistentStore, "Genesis block is missing from storage")
	}
	if genesis != nil && first.ID != genesis.ID {
		return lerrors.NewError(lerrors.ErrCodeStateDivergence,
			fmt.Sprintf("Stored genesis %s does not match configured genesis %s", first.ID, genesis.ID))
	}
	c.engine.SetGenesisBlockID(first.ID)
	last, err := c.fullBlock(height)
	if err != nil {
		return err
	}
	c.ledger.SetLastBlock(last)
	if err := c.verifier.LoadLastBlockIDs(c.blocks); err != nil {
		return err
	}
	logx.Info("CHAIN", "Loaded chain at height ", last.Height, " tip ", last.ID)
	return nil
}

func (c *Chain) fullBlock(height int64) (*types.Block, error) {
	b, err := c.blocks.ByHeight(height)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, nil
	}
	if b.Transactions, err = c.blocks.Transactions(b.ID); err != nil {
		return nil, err
	}
	return b, nil
}

// VerifyStoredChain walks the stored blocks checking ids and linkage.
func (c *Chain) VerifyStoredChain(ctx context.Context) error {
	height, err := c.blocks.LastHeight()
	if err != nil || height == 0 {
		return err
	}
	progress := NewProgressLogger(int(height), 10, "Verifying stored blocks")
	var prev *types.Block
	for h := int64(1); h <= height; h++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, err := c.fullBlock(h)
		if err != nil {
			return err
		}
		if b == nil {
			return lerrors.NewError(lerrors.ErrCodeInconsistentStore, fmt.Sprintf("Block at height %d is missing", h))
		}
		id, err := ID(b)
		if err != nil {
			return err
		}
		if id != b.ID || (prev != nil && b.PreviousBlock != prev.ID) {
			return lerrors.NewError(lerrors.ErrCodeStateDivergence, fmt.Sprintf("Stored block %s at height %d does not chain", b.ID, h))
		}
		if payload, err := ComputePayload(c.engine.Registry(), b.Transactions); err != nil || !bytes.Equal(payload.Hash, b.PayloadHash) {
			return lerrors.NewError(lerrors.ErrCodeStateDivergence, fmt.Sprintf("Stored block %s has a broken payload", b.ID))
		}
		if err := progress.ApplyNext(); err != nil {
			return err
		}
		prev = b
	}
	return nil
}

// ApplyGenesisBlock applies the genesis transactions, votes last, without balance checks.
func (c *Chain) ApplyGenesisBlock(ctx context.Context, genesis *types.Block) error {
	return c.ledger.Sequence().Run(ctx, func(ctx context.Context) error {
		if c.ledger.LastBlock() != nil {
			return fmt.Errorf("genesis already applied, tip at %d", c.ledger.Height())
		}
		genesis.Height = 1
		c.engine.SetGenesisBlockID(genesis.ID)

		txs := append([]*types.Transaction(nil), genesis.Transactions...)
		sort.SliceStable(txs, func(i, j int) bool {
			return txs[i].Type != types.TxTypeVote && txs[j].Type == types.TxTypeVote
		})

		cache := ledger.NewAccountCache(c.ledger)
		var ops []dbop.Op
		for _, tx := range txs {
			tx.BlockID = genesis.ID
			tx.Height = genesis.Height
			addr := ids.AddressFromPubData(tx.SenderPubData)
			sender, err := cache.GetOrCreate(addr)
			if err != nil {
				return err
			}
			if len(sender.PublicKey) == 0 {
				sender.PublicKey = append([]byte(nil), tx.SenderPubData...)
				ops = append(ops,
					dbop.Create(dbop.TargetAccounts, dbop.Values{"address": dbop.Set(addr)}),
					dbop.Update(dbop.TargetAccounts, dbop.ByAddress(addr), dbop.Values{"publicKey": dbop.Set(sender.PublicKey)}),
				)
			}
			txOps, err := c.applyTx(ctx, cache, tx, genesis, sender)
			if err != nil {
				return fmt.Errorf("genesis transaction %s: %w", tx.ID, err)
			}
			ops = append(ops, txOps...)
		}
		ops = append(ops, dbop.Create(dbop.TargetBlocks, dbop.Values{"block": dbop.Set(genesis)}))
		saveOps, err := c.engine.DBSave(genesis.Transactions, genesis)
		if err != nil {
			return err
		}
		ops = append(ops, saveOps...)
		ops = append(ops, dbop.Custom(dbop.TargetAccounts, dbop.Query{Name: dbop.QueryRecalcVotes}))
		if err := c.executor.Execute(ctx, ops); err != nil {
			return fmt.Errorf("could not apply genesis block: %w", err)
		}
		c.afterApply(ctx, genesis, nil)
		logx.Info("CHAIN", "Applied genesis block ", genesis.ID, " with ", len(genesis.Transactions), " transactions")
		return nil
	})
}

func (c *Chain) applyTx(ctx context.Context, cache *ledger.AccountCache, tx *types.Transaction, block *types.Block, sender *types.Account) ([]dbop.Op, error) {
	if tx.RecipientID != "" {
		if _, err := cache.GetOrCreate(tx.RecipientID); err != nil {
			return nil, err
		}
	}
	unconfirmed, err := c.engine.ApplyUnconfirmed(ctx, tx, sender)
	if err != nil {
		return nil, err
	}
	if len(unconfirmed) > 1 {
		cache.Reflect(unconfirmed[1:])
	}
	confirmed, err := c.engine.Apply(ctx, tx, block, sender)
	if err != nil {
		return nil, err
	}
	if len(confirmed) > 1 {
		cache.Reflect(confirmed[1:])
	}
	return append(unconfirmed, confirmed...), nil
}

// ProcessBlock verifies block against the tip and applies it.
func (c *Chain) ProcessBlock(ctx context.Context, block *types.Block) error {
	return c.ledger.Sequence().Run(ctx, func(ctx context.Context) error {
		if err := c.checkHalted(); err != nil {
			return err
		}
		last := c.ledger.LastBlock()
		if last == nil {
			return ErrNoGenesis
		}
		block.Height = last.Height + 1

		res := c.verifier.VerifyBlock(ctx, block)
		if !res.Verified {
			monitoring.IncreaseRejectedBlockCount()
			logx.Warn("CHAIN", "Block ", block.ID, " verification failed: ", strings.Join(res.Errors, ", "))
			return &VerificationError{BlockID: block.ID, Errors: res.Errors}
		}
		if err := c.verifySlot(block, last); err != nil {
			monitoring.IncreaseRejectedBlockCount()
			return err
		}
		exists, err := c.blocks.HasBlock(block.ID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrBlockExists, block.ID)
		}

		cache := ledger.NewAccountCache(c.ledger)
		if err := c.verifier.CheckBlockTransactions(ctx, block, cache); err != nil {
			monitoring.IncreaseRejectedBlockCount()
			return err
		}
		return c.applyBlock(ctx, block, cache)
	})
}

// verifySlot checks block sits in a slot after the tip's, not in the future, and that its
// generator owns that slot.
func (c *Chain) verifySlot(block, last *types.Block) error {
	slot := c.slots.SlotNumber(int64(block.Timestamp))
	if slot <= c.slots.SlotNumber(int64(last.Timestamp)) || slot > c.slots.SlotNumber(c.slots.Time(c.clock.Now())) {
		return fmt.Errorf("%w: slot %d", ErrBlockTimestamp, slot)
	}
	keys, err := c.accountant.Lists().ForHeight(block.Height)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: %d", ErrSlot, slot)
	}
	if !bytes.Equal(keys[slot%int64(len(keys))], block.GeneratorPublicKey) {
		return fmt.Errorf("%w: %d", ErrSlot, slot)
	}
	return nil
}

// ApplyBlock applies an already verified block on top of the tip.
func (c *Chain) ApplyBlock(ctx context.Context, block *types.Block) error {
	return c.ledger.Sequence().Run(ctx, func(ctx context.Context) error {
		return c.applyBlock(ctx, block, ledger.NewAccountCache(c.ledger))
	})
}

func (c *Chain) applyBlock(ctx context.Context, block *types.Block, cache *ledger.AccountCache) error {
	if err := c.checkHalted(); err != nil {
		return err
	}
	start := time.Now()

	ops, pending, err := c.pool.UndoAll(ctx, cache)
	if err != nil {
		return err
	}
	senders := make([]*types.Account, 0, len(block.Transactions))
	for _, tx := range block.Transactions {
		tx.BlockID = block.ID
		tx.Height = block.Height
		sender, err := cache.Get(ids.AddressFromPubData(tx.SenderPubData))
		if err != nil {
			return err
		}
		if sender == nil {
			return fmt.Errorf("transaction %s: %w", tx.ID, transaction.ErrMissingSender)
		}
		txOps, err := c.applyTx(ctx, cache, tx, block, sender)
		if err != nil {
			return fmt.Errorf("transaction %s: %w", tx.ID, err)
		}
		ops = append(ops, txOps...)
		senders = append(senders, sender)
	}
	if err := checkInvariants(block, senders); err != nil {
		return c.halt(err)
	}

	ops = append(ops, dbop.Create(dbop.TargetBlocks, dbop.Values{"block": dbop.Set(block)}))
	saveOps, err := c.engine.DBSave(block.Transactions, block)
	if err != nil {
		return err
	}
	ops = append(ops, saveOps...)

	roundOps, err := c.accountant.Tick(ctx, block)
	if err != nil {
		if lerrors.IsFatal(err) {
			return c.halt(err)
		}
		return fmt.Errorf("round tick at %d: %w", block.Height, err)
	}
	ops = append(ops, roundOps...)

	out, err := c.ApplyHooks.Apply(ctx, &ApplyPayload{Block: block, Ops: ops})
	if err != nil {
		return err
	}
	if err := c.executor.Execute(ctx, out.Ops); err != nil {
		return fmt.Errorf("could not apply block %s: %w", block.ID, err)
	}

	c.afterApply(ctx, block, pending)
	monitoring.RecordBlockTime(time.Since(start))
	monitoring.RecordTxInBlock(len(block.Transactions))
	logx.Info("CHAIN", fmt.Sprintf("Applied block %s at height %d with %d transactions", block.ID, block.Height, len(block.Transactions)))
	return nil
}

func (c *Chain) afterApply(ctx context.Context, block *types.Block, pending []*types.Transaction) {
	c.ledger.SetLastBlock(block)
	c.verifier.OnNewBlock(block.ID)
	c.pool.OnBlockApplied(ctx, block, pending)
	monitoring.IncreaseAppliedBlockCount()
	if c.bus != nil {
		c.bus.Publish(events.NewBlockApplied(block))
	}
}

// checkInvariants asserts what verification already implies: no sender ends below zero and
// the block moves exactly what its header declares.
func checkInvariants(block *types.Block, senders []*types.Account) error {
	for _, s := range senders {
		if s.Balance < 0 {
			return lerrors.NewError(lerrors.ErrCodeNegativeBalance, fmt.Sprintf(lerrors.ErrMsgNegativeBalance, s.Address, s.Balance))
		}
	}
	var moved int64
	for _, tx := range block.Transactions {
		total, err := utils.SumAmounts(moved, tx.Amount, tx.Fee)
		if err != nil {
			return lerrors.NewError(lerrors.ErrCodeUnbalancedBlock, err.Error())
		}
		moved = total
	}
	declared, err := utils.SumAmounts(block.TotalAmount, block.TotalFee)
	if err != nil || moved != declared {
		return lerrors.NewError(lerrors.ErrCodeUnbalancedBlock, fmt.Sprintf(lerrors.ErrMsgUnbalancedBlock, block.ID, moved, declared))
	}
	return nil
}

// DeleteLastBlock rolls the tip back by one block and returns the new tip.
func (c *Chain) DeleteLastBlock(ctx context.Context) (*types.Block, error) {
	var newTip *types.Block
	err := c.ledger.Sequence().Run(ctx, func(ctx context.Context) error {
		if err := c.checkHalted(); err != nil {
			return err
		}
		last := c.ledger.LastBlock()
		if last == nil {
			return ErrCurBlockMissing
		}
		if last.Height == 1 {
			return ErrGenesisDeletion
		}
		cur, err := c.blocks.ByID(last.ID)
		if err != nil {
			return err
		}
		if cur == nil {
			return ErrCurBlockMissing
		}
		if cur.Transactions, err = c.blocks.Transactions(cur.ID); err != nil {
			return err
		}
		if err := c.engine.AttachAssets(ctx, cur.Transactions); err != nil {
			return err
		}
		prev, err := c.fullBlock(cur.Height - 1)
		if err != nil {
			return err
		}
		if prev == nil || prev.ID != cur.PreviousBlock {
			return ErrPrevBlockMissing
		}

		cache := ledger.NewAccountCache(c.ledger)
		ops, pending, err := c.pool.UndoAll(ctx, cache)
		if err != nil {
			return err
		}
		for i := len(cur.Transactions) - 1; i >= 0; i-- {
			tx := cur.Transactions[i]
			sender, err := cache.Get(ids.AddressFromPubData(tx.SenderPubData))
			if err != nil {
				return err
			}
			if sender == nil {
				return fmt.Errorf("transaction %s: %w", tx.ID, transaction.ErrMissingSender)
			}
			if tx.RecipientID != "" {
				if _, err := cache.Get(tx.RecipientID); err != nil {
					return err
				}
			}
			undo, err := c.engine.Undo(ctx, tx, cur, sender)
			if err != nil {
				return fmt.Errorf("undo %s: %w", tx.ID, err)
			}
			if len(undo) > 1 {
				cache.Reflect(undo[1:])
			}
			undoU, err := c.engine.UndoUnconfirmed(ctx, tx, sender)
			if err != nil {
				return fmt.Errorf("undo unconfirmed %s: %w", tx.ID, err)
			}
			if len(undoU) > 1 {
				cache.Reflect(undoU[1:])
			}
			ops = append(ops, undo...)
			ops = append(ops, undoU...)
		}

		roundOps, err := c.accountant.BackwardTick(ctx, cur, prev)
		if err != nil {
			if lerrors.IsFatal(err) {
				return c.halt(err)
			}
			return fmt.Errorf("backward round tick at %d: %w", cur.Height, err)
		}
		ops = append(ops, roundOps...)
		ops = append(ops, dbop.Custom(dbop.TargetBlocks, dbop.Query{Name: dbop.QueryDeleteBlock, Key: cur.ID}))

		out, err := c.ApplyHooks.Apply(ctx, &ApplyPayload{Block: cur, Backward: true, Ops: ops})
		if err != nil {
			return err
		}
		if err := c.executor.Execute(ctx, out.Ops); err != nil {
			return fmt.Errorf("could not delete block %s: %w", cur.ID, err)
		}

		c.ledger.SetLastBlock(prev)
		c.verifier.OnDeletedBlock(cur.ID)
		c.pool.OnBlockDeleted(ctx, cur, pending)
		monitoring.IncreaseDeletedBlockCount()
		if c.bus != nil {
			c.bus.Publish(events.NewBlockDeleted(cur, prev))
		}
		logx.Warn("CHAIN", "Deleted block ", cur.ID, " at height ", cur.Height, ", new tip ", prev.ID)
		newTip = prev
		return nil
	})
	return newTip, err
}

// DeleteAfterBlock rolls back until the block with id is the tip.
func (c *Chain) DeleteAfterBlock(ctx context.Context, id string) error {
	return c.ledger.Sequence().Run(ctx, func(ctx context.Context) error {
		target, err := c.blocks.ByID(id)
		if err != nil {
			return err
		}
		if target == nil {
			return fmt.Errorf("block %s not found", id)
		}
		for c.ledger.Height() > target.Height {
			if _, err := c.DeleteLastBlock(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// RecoverChain drops the tip after a failed apply left the node unsure about it.
func (c *Chain) RecoverChain(ctx context.Context) error {
	tip, err := c.DeleteLastBlock(ctx)
	if err != nil {
		logx.Error("CHAIN", "Recovery failed: ", err)
		return err
	}
	logx.Info("CHAIN", "Recovery complete, new last block: ", tip.ID)
	return nil
}
