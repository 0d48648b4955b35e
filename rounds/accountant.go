package rounds

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync/atomic"

	"github.com/mezonai/dpos/dbop"
	lerrors "github.com/mezonai/dpos/errors"
	"github.com/mezonai/dpos/hooks"
	"github.com/mezonai/dpos/logx"
	"github.com/mezonai/dpos/monitoring"
	"github.com/mezonai/dpos/types"
)

// BlockSource reads stored blocks of the round being closed.
type BlockSource interface {
	ByHeight(height int64) (*types.Block, error)
}

// Params answers height-dependent protocol questions.
type Params interface {
	DposV2At(height int64) bool
}

type Config struct {
	ActiveDelegates      int64
	DposFeesSwitchHeight int64
}

// TickPayload flows through the round hook points; filters may append or rewrite ops.
type TickPayload struct {
	Block *types.Block
	Scope *Scope
	Ops   []dbop.Op
}

// Accountant produces the round-closing ops for blocks being applied or rolled back.
type Accountant struct {
	cfg      Config
	accounts AccountSource
	blocks   BlockSource
	lists    *DelegateLists
	params   Params

	ApplyHooks *hooks.Point[*TickPayload]
	UndoHooks  *hooks.Point[*TickPayload]

	ticking atomic.Bool
}

func NewAccountant(cfg Config, accounts AccountSource, blocks BlockSource, lists *DelegateLists, params Params) *Accountant {
	return &Accountant{
		cfg:        cfg,
		accounts:   accounts,
		blocks:     blocks,
		lists:      lists,
		params:     params,
		ApplyHooks: hooks.NewPoint[*TickPayload]("roundApply"),
		UndoHooks:  hooks.NewPoint[*TickPayload]("roundUndo"),
	}
}

func (a *Accountant) Lists() *DelegateLists { return a.lists }

func (a *Accountant) ActiveDelegates() int64 { return a.cfg.ActiveDelegates }

// IsTicking reports whether round ops are being assembled right now.
func (a *Accountant) IsTicking() bool { return a.ticking.Load() }

// Tick returns the ops closing the round of block, which is being applied and not yet stored.
// Mid-round blocks produce no ops.
func (a *Accountant) Tick(ctx context.Context, block *types.Block) ([]dbop.Op, error) {
	a.ticking.Store(true)
	defer a.ticking.Store(false)

	scope, err := a.buildScope(block, false)
	if err != nil || scope == nil {
		return nil, err
	}
	logic, err := NewLogic(scope)
	if err != nil {
		return nil, err
	}
	ops, err := logic.Apply()
	if err != nil {
		return nil, a.roundError(scope, err)
	}
	out, err := a.ApplyHooks.Apply(ctx, &TickPayload{Block: block, Scope: scope, Ops: ops})
	if err != nil {
		return nil, err
	}
	monitoring.RecordRoundFinished(len(scope.Outsiders))
	logx.Info("ROUNDS", fmt.Sprintf("Finished round %d at height %d, %d forgers, %d outsiders, split %s",
		scope.Round, block.Height, len(scope.Forgers), len(scope.Outsiders), scope.Splitter.Name()))
	return out.Ops, nil
}

// BackwardTick returns the ops reverting the round closed by block, which is being removed
// in favour of prev.
func (a *Accountant) BackwardTick(ctx context.Context, block, prev *types.Block) ([]dbop.Op, error) {
	a.ticking.Store(true)
	defer a.ticking.Store(false)

	if prev == nil || prev.Height != block.Height-1 {
		return nil, fmt.Errorf("backward tick of %d needs its parent block", block.Height)
	}
	scope, err := a.buildScope(block, true)
	if err != nil || scope == nil {
		return nil, err
	}
	logic, err := NewLogic(scope)
	if err != nil {
		return nil, err
	}
	ops, err := logic.Undo()
	if err != nil {
		return nil, a.roundError(scope, err)
	}
	out, err := a.UndoHooks.Apply(ctx, &TickPayload{Block: block, Scope: scope, Ops: ops})
	if err != nil {
		return nil, err
	}
	a.lists.Forget(scope.Round + 1)
	logx.Info("ROUNDS", fmt.Sprintf("Reverted round %d back to height %d", scope.Round, prev.Height))
	return out.Ops, nil
}

func (a *Accountant) roundError(scope *Scope, err error) error {
	if lerrors.IsFatal(err) {
		logx.Error("ROUNDS", "round ", scope.Round, " accounting broke an invariant: ", err)
		return err
	}
	return fmt.Errorf("round %d: %w", scope.Round, err)
}

// buildScope gathers the round closed by block. It returns nil when block does not close a round.
// The genesis block forges no reward and is left out of the accounting.
func (a *Accountant) buildScope(block *types.Block, backwards bool) (*Scope, error) {
	n := a.cfg.ActiveDelegates
	if !FinishesRound(block.Height, n) {
		return nil, nil
	}
	round := CalcRound(block.Height, n)
	scope := &Scope{
		Round:       round,
		Backwards:   backwards,
		FinishRound: true,
		DposV2:      a.params.DposV2At(block.Height),
		Splitter:    SplitterAt(block.Height, a.cfg.DposFeesSwitchHeight),
		CMB:         make(map[string]int64),
	}

	produced := make(map[string]struct{})
	start := FirstInRound(round, n)
	if start < 2 {
		start = 2
	}
	for h := start; h <= block.Height; h++ {
		b := block
		if h < block.Height {
			var err error
			if b, err = a.blocks.ByHeight(h); err != nil {
				return nil, err
			}
			if b == nil {
				return nil, lerrors.NewError(lerrors.ErrCodeInconsistentStore, fmt.Sprintf("Block at height %d of round %d is missing", h, round))
			}
		}
		forger, err := a.delegateByKey(b.GeneratorPublicKey)
		if err != nil {
			return nil, err
		}
		produced[hex.EncodeToString(b.GeneratorPublicKey)] = struct{}{}
		scope.Forgers = append(scope.Forgers, forger.Address)
		scope.Fees = append(scope.Fees, b.TotalFee)
		scope.Rewards = append(scope.Rewards, b.Reward)
		scope.CMB[forger.Address] = forger.ConsecutiveMissedBlocks
	}

	if block.Height > 1 {
		list, err := a.lists.ForRound(round)
		if err != nil {
			return nil, err
		}
		for _, key := range list {
			if _, ok := produced[hex.EncodeToString(key)]; ok {
				continue
			}
			outsider, err := a.delegateByKey(key)
			if err != nil {
				return nil, err
			}
			scope.Outsiders = append(scope.Outsiders, outsider.Address)
			scope.CMB[outsider.Address] = outsider.ConsecutiveMissedBlocks
		}
	}
	return scope, nil
}

func (a *Accountant) delegateByKey(key []byte) (*types.Account, error) {
	acc, err := a.accounts.GetByForgingPK(key)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, fmt.Errorf("no delegate forges with key %s", hex.EncodeToString(key))
	}
	return acc, nil
}
