package transaction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mezonai/dpos/crypto"
	"github.com/mezonai/dpos/dbop"
	"github.com/mezonai/dpos/hooks"
	"github.com/mezonai/dpos/ids"
	"github.com/mezonai/dpos/types"
	"github.com/mezonai/dpos/utils"
)

// Engine runs the checks common to every transaction type and delegates the rest to the variant.
type Engine struct {
	registry *Registry
	verifier crypto.Verifier
	clock    utils.Clock
	slots    utils.Slots
	hooks    *Hooks

	mu             sync.RWMutex
	genesisBlockID string
}

func NewEngine(registry *Registry, verifier crypto.Verifier, clock utils.Clock, slots utils.Slots) *Engine {
	e := &Engine{
		registry: registry,
		verifier: verifier,
		clock:    clock,
		slots:    slots,
		hooks:    NewHooks(),
	}
	e.hooks.SignatureVerify.Register("primarySignature", 0, e.verifyPrimarySignature)
	return e
}

func (e *Engine) Registry() *Registry { return e.registry }

func (e *Engine) Hooks() *Hooks { return e.hooks }

// SetGenesisBlockID marks the block whose transactions are exempt from balance checks.
func (e *Engine) SetGenesisBlockID(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.genesisBlockID = id
}

func (e *Engine) isGenesis(blockID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return blockID != "" && blockID == e.genesisBlockID
}

func (e *Engine) SignableBytes(tx *types.Transaction) ([]byte, error) {
	return e.registry.SignableBytes(tx)
}

func (e *Engine) FullBytes(tx *types.Transaction) ([]byte, error) { return e.registry.FullBytes(tx) }

func (e *Engine) ID(tx *types.Transaction) (string, error) { return e.registry.ID(tx) }

// Verify runs the full check sequence for tx as it would be included at height.
func (e *Engine) Verify(ctx context.Context, tx *types.Transaction, sender *types.Account, height int64) error {
	variant, err := e.registry.Get(tx.Type)
	if err != nil {
		return err
	}
	if sender == nil {
		return ErrMissingSender
	}
	if _, err := e.hooks.StaticCheck.Apply(ctx, &CheckPayload{Tx: tx, Sender: sender, Height: height}); err != nil {
		return err
	}

	if int64(tx.Timestamp) > e.slots.Time(e.clock.Now()) {
		return ErrTimestampInFuture
	}

	id, err := e.registry.ID(tx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if id != tx.ID {
		return fmt.Errorf("%w - Expected %s, Received %s", ErrIDMismatch, id, tx.ID)
	}

	addr := ids.AddressFromPubData(tx.SenderPubData)
	if addr != sender.Address || (tx.SenderID != "" && tx.SenderID != addr) {
		return ErrAddressMismatch
	}

	if minFee := variant.CalculateMinFee(tx, sender, height); tx.Fee < minFee {
		return fmt.Errorf("%w. Min fee is %d", ErrFeeTooLow, minFee)
	}

	total, err := utils.SumAmounts(tx.Amount, tx.Fee)
	if err != nil {
		return ErrInvalidAmount
	}

	if !e.isGenesis(tx.BlockID) && sender.Balance < total {
		return fmt.Errorf("%w: %s balance: %d - %d", ErrInsufficientBalance, sender.Address, sender.Balance, total)
	}

	hash, err := e.registry.Hash(tx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, err := e.hooks.SignatureVerify.Apply(ctx, &SignaturePayload{Tx: tx, Sender: sender, Hash: hash}); err != nil {
		return err
	}

	if _, err := e.hooks.Verify.Apply(ctx, &CheckPayload{Tx: tx, Sender: sender, Height: height}); err != nil {
		return err
	}

	return variant.Verify(ctx, tx, sender)
}

func (e *Engine) verifyPrimarySignature(_ context.Context, p *SignaturePayload) (*SignaturePayload, error) {
	if len(p.Tx.Signatures) == 0 || !e.verifier.Verify(p.Tx.SenderPubData, p.Hash, p.Tx.Signatures[0]) {
		return p, fmt.Errorf("%w: %s", ErrSignatureInvalid, p.Tx.ID)
	}
	return p, nil
}

// Ready reports whether tx can be applied now, e.g. all required signatures are present.
func (e *Engine) Ready(tx *types.Transaction, sender *types.Account) (bool, error) {
	variant, err := e.registry.Get(tx.Type)
	if err != nil {
		return false, err
	}
	return variant.Ready(tx, sender), nil
}

// Apply debits the sender's confirmed balance in memory and returns the ops persisting tx.
func (e *Engine) Apply(ctx context.Context, tx *types.Transaction, block *types.Block, sender *types.Account) ([]dbop.Op, error) {
	variant, err := e.registry.Get(tx.Type)
	if err != nil {
		return nil, err
	}
	if !variant.Ready(tx, sender) {
		return nil, fmt.Errorf("%w: %s", ErrNotReady, tx.ID)
	}
	total, err := utils.SumAmounts(tx.Amount, tx.Fee)
	if err != nil {
		return nil, ErrInvalidAmount
	}
	if !e.isGenesis(block.ID) && sender.Balance < total {
		return nil, fmt.Errorf("%w: %s balance: %d - %d", ErrInsufficientBalance, sender.Address, sender.Balance, total)
	}

	sender.Balance -= total
	ops := []dbop.Op{
		dbop.Update(dbop.TargetAccounts, dbop.ByAddress(sender.Address), dbop.Values{"balance": dbop.Inc(-total)}),
	}
	variantOps, err := variant.Apply(ctx, tx, block, sender)
	if err != nil {
		sender.Balance += total
		return nil, err
	}
	return e.runOps(ctx, e.hooks.Apply, tx, block, sender, append(ops, variantOps...), func() { sender.Balance += total })
}

// Undo is the exact inverse of Apply.
func (e *Engine) Undo(ctx context.Context, tx *types.Transaction, block *types.Block, sender *types.Account) ([]dbop.Op, error) {
	variant, err := e.registry.Get(tx.Type)
	if err != nil {
		return nil, err
	}
	total, err := utils.SumAmounts(tx.Amount, tx.Fee)
	if err != nil {
		return nil, ErrInvalidAmount
	}

	sender.Balance += total
	ops := []dbop.Op{
		dbop.Update(dbop.TargetAccounts, dbop.ByAddress(sender.Address), dbop.Values{"balance": dbop.Inc(total)}),
	}
	variantOps, err := variant.Undo(ctx, tx, block, sender)
	if err != nil {
		sender.Balance -= total
		return nil, err
	}
	return e.runOps(ctx, e.hooks.Undo, tx, block, sender, append(ops, variantOps...), func() { sender.Balance -= total })
}

// ApplyUnconfirmed is Apply against the shadow balance.
func (e *Engine) ApplyUnconfirmed(ctx context.Context, tx *types.Transaction, sender *types.Account) ([]dbop.Op, error) {
	variant, err := e.registry.Get(tx.Type)
	if err != nil {
		return nil, err
	}
	total, err := utils.SumAmounts(tx.Amount, tx.Fee)
	if err != nil {
		return nil, ErrInvalidAmount
	}
	if !e.isGenesis(tx.BlockID) && sender.UBalance < total {
		return nil, fmt.Errorf("%w: %s balance: %d - %d", ErrInsufficientBalance, sender.Address, sender.UBalance, total)
	}

	sender.UBalance -= total
	ops := []dbop.Op{
		dbop.Update(dbop.TargetAccounts, dbop.ByAddress(sender.Address), dbop.Values{"u_balance": dbop.Inc(-total)}),
	}
	variantOps, err := variant.ApplyUnconfirmed(ctx, tx, sender)
	if err != nil {
		sender.UBalance += total
		return nil, err
	}
	return e.runOps(ctx, e.hooks.ApplyUnconfirmed, tx, nil, sender, append(ops, variantOps...), func() { sender.UBalance += total })
}

func (e *Engine) UndoUnconfirmed(ctx context.Context, tx *types.Transaction, sender *types.Account) ([]dbop.Op, error) {
	variant, err := e.registry.Get(tx.Type)
	if err != nil {
		return nil, err
	}
	total, err := utils.SumAmounts(tx.Amount, tx.Fee)
	if err != nil {
		return nil, ErrInvalidAmount
	}

	sender.UBalance += total
	ops := []dbop.Op{
		dbop.Update(dbop.TargetAccounts, dbop.ByAddress(sender.Address), dbop.Values{"u_balance": dbop.Inc(total)}),
	}
	variantOps, err := variant.UndoUnconfirmed(ctx, tx, sender)
	if err != nil {
		sender.UBalance -= total
		return nil, err
	}
	return e.runOps(ctx, e.hooks.UndoUnconfirmed, tx, nil, sender, append(ops, variantOps...), func() { sender.UBalance -= total })
}

func (e *Engine) runOps(ctx context.Context, point *hooks.Point[*OpsPayload], tx *types.Transaction, block *types.Block, sender *types.Account, ops []dbop.Op, revert func()) ([]dbop.Op, error) {
	out, err := point.Apply(ctx, &OpsPayload{Tx: tx, Block: block, Sender: sender, Ops: ops})
	if err != nil {
		revert()
		return nil, err
	}
	return out.Ops, nil
}

// DBSave returns the ops persisting txs of block: one bulk insert plus per-variant asset rows.
func (e *Engine) DBSave(txs []*types.Transaction, block *types.Block) ([]dbop.Op, error) {
	if len(txs) == 0 {
		return nil, nil
	}
	rows := make([]dbop.Values, len(txs))
	var assetOps []dbop.Op
	for i, tx := range txs {
		variant, err := e.registry.Get(tx.Type)
		if err != nil {
			return nil, err
		}
		tx.BlockID = block.ID
		tx.Height = block.Height
		rows[i] = dbop.Values{"tx": dbop.Set(tx), "index": dbop.Set(i)}
		if op := variant.DBSave(tx); op != nil {
			assetOps = append(assetOps, *op)
		}
	}
	return append([]dbop.Op{dbop.BulkCreate(dbop.TargetTransactions, rows)}, assetOps...), nil
}

// FindConflicts groups txs by type and asks each variant for the ones that cannot coexist.
func (e *Engine) FindConflicts(ctx context.Context, txs []*types.Transaction) ([]*types.Transaction, error) {
	groups, order, err := e.group(txs)
	if err != nil {
		return nil, err
	}
	var out []*types.Transaction
	for _, t := range order {
		variant, _ := e.registry.Get(t)
		conflicts, err := variant.FindConflicts(ctx, groups[t])
		if err != nil {
			return nil, err
		}
		out = append(out, conflicts...)
	}
	return out, nil
}

// AttachAssets restores the variant assets of txs loaded from storage.
func (e *Engine) AttachAssets(ctx context.Context, txs []*types.Transaction) error {
	groups, order, err := e.group(txs)
	if err != nil {
		return err
	}
	for _, t := range order {
		variant, _ := e.registry.Get(t)
		if err := variant.AttachAssets(ctx, groups[t]); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) group(txs []*types.Transaction) (map[types.TxType][]*types.Transaction, []types.TxType, error) {
	groups := make(map[types.TxType][]*types.Transaction)
	for _, tx := range txs {
		if _, err := e.registry.Get(tx.Type); err != nil {
			return nil, nil, err
		}
		groups[tx.Type] = append(groups[tx.Type], tx)
	}
	order := make([]types.TxType, 0, len(groups))
	for t := range groups {
		order = append(order, t)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	return groups, order, nil
}

// ObjectNormalize checks the shape of tx before any state is consulted, derives its sender
// address and drops any block assignment it carries.
func (e *Engine) ObjectNormalize(tx *types.Transaction) (*types.Transaction, error) {
	variant, err := e.registry.Get(tx.Type)
	if err != nil {
		return nil, err
	}
	switch {
	case tx.ID == "":
		return nil, fmt.Errorf("%w: missing id", ErrMalformed)
	case len(tx.SenderPubData) != 32:
		return nil, fmt.Errorf("%w: sender public key must be 32 bytes", ErrMalformed)
	case len(tx.Signatures) == 0:
		return nil, fmt.Errorf("%w: missing signature", ErrMalformed)
	case tx.Amount < 0 || tx.Fee < 0:
		return nil, ErrInvalidAmount
	}
	for _, sig := range tx.Signatures {
		if len(sig) != 64 {
			return nil, fmt.Errorf("%w: signature must be 64 bytes", ErrMalformed)
		}
	}
	if tx.RecipientID != "" && !ids.IsAddress(tx.RecipientID) {
		return nil, fmt.Errorf("%w: invalid recipient %q", ErrMalformed, tx.RecipientID)
	}
	addr := ids.AddressFromPubData(tx.SenderPubData)
	if tx.SenderID != "" && tx.SenderID != addr {
		return nil, ErrAddressMismatch
	}
	tx.SenderID = addr
	// Inclusion is assigned by the chain, never taken from the submitter.
	tx.BlockID, tx.Height = "", 0
	if err := variant.ObjectNormalize(tx); err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}
	return tx, nil
}
